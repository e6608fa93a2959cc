// Package strings holds small string helpers shared by HTTP handlers.
package strings

import (
	"strings"

	"github.com/samber/lo"
)

// SplitList splits a comma-separated query value into trimmed, non-empty,
// de-duplicated entries in first-seen order. An empty input yields nil.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Uniq(lo.Compact(parts))
}
