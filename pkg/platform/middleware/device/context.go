// Package device labels client devices from their user agent so one user's
// concurrent connections can be told apart in logs.
package device

import (
	"context"
	"strings"

	"github.com/mssola/useragent"
)

type contextKeyDeviceLabel struct{}

// Label summarises a User-Agent header as "browser/os", with a "mobile"
// or "bot" suffix where it applies. Empty input yields "unknown".
func Label(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot/" + orUnknown(name)
	}
	browser, _ := ua.Browser()
	label := orUnknown(browser) + "/" + orUnknown(ua.OS())
	if ua.Mobile() {
		label += "/mobile"
	}
	return label
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// GetDeviceLabel retrieves the device label from the context.
func GetDeviceLabel(ctx context.Context) string {
	if label, ok := ctx.Value(contextKeyDeviceLabel{}).(string); ok {
		return label
	}
	return ""
}

// WithDeviceLabel injects a device label into a context.
func WithDeviceLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceLabel{}, label)
}
