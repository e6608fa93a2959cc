package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/pkg/domain"
	"relay/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// Store reads accounts from PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the accounts table if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate accounts: %w", err)
	}
	return nil
}

// Save upserts an account.
func (s *Store) Save(ctx context.Context, account *domain.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("account id is required: %w", sentinel.ErrInvalidState)
	}
	query := `
		INSERT INTO accounts (id, role, name, email, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			active = EXCLUDED.active,
			updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, account.ID, account.Role, account.Name, account.Email, account.Active); err != nil {
		return fmt.Errorf("save account %s: %w", account.ID, err)
	}
	return nil
}

// FindByID returns the current state of an account.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT id, role, name, email, active FROM accounts WHERE id = $1`
	var account domain.Account
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Role,
		&account.Name,
		&account.Email,
		&account.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find account %s: %w", id, err)
	}
	return &account, nil
}
