package memory

import (
	"context"
	"fmt"
	"sync"

	"relay/pkg/domain"
	"relay/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]domain.Account)}
}

func (s *InMemoryStore) Save(_ context.Context, account *domain.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("account id is required: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = *account
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	return &account, nil
}
