// Package store holds the accounts principals are resolved against on every
// socket handshake and admin request.
package store

import (
	"context"

	"relay/pkg/domain"
)

// AccountStore resolves principals by id. Missing accounts are
// sentinel.ErrNotFound.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Save(ctx context.Context, account *domain.Account) error
}
