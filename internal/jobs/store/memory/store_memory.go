package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"relay/internal/jobs/models"
	"relay/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

// InMemoryStore keeps audit records in a map. Every mutation happens inside a
// single critical section, which is what makes AppendResponse atomic.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.AuditRecord
	clock   Clock
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		records: make(map[string]*models.AuditRecord),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clear drops every record.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.AuditRecord)
}

// Create stores rec, assigning ID and timestamps when unset.
func (s *InMemoryStore) Create(_ context.Context, rec *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("audit record %s: %w", rec.ID, sentinel.ErrConflict)
	}
	now := s.clock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

// SetResponse overwrites the single response and status of a record.
func (s *InMemoryStore) SetResponse(_ context.Context, id string, status models.Status, resp models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	rec.Status = status
	rec.Response = &resp
	rec.UpdatedAt = s.clock()
	return nil
}

// AppendResponse appends resp to the record's responses and folds the status.
func (s *InMemoryStore) AppendResponse(_ context.Context, id string, incoming models.Status, resp models.Response) (*models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	rec.Responses = append(rec.Responses, resp)
	rec.Status = models.AggregateStatus(rec.Status, incoming, resp)
	rec.UpdatedAt = s.clock()
	return clone(rec), nil
}

// FindByID returns a copy of the record.
func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return clone(rec), nil
}

// ListByStatus returns up to limit records in any of statuses, newest first.
// A limit <= 0 means no limit.
func (s *InMemoryStore) ListByStatus(_ context.Context, limit int, statuses ...models.Status) ([]*models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuditRecord
	for _, rec := range s.records {
		if len(statuses) == 0 || slices.Contains(statuses, rec.Status) {
			out = append(out, clone(rec))
		}
	}
	slices.SortFunc(out, func(a, b *models.AuditRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(rec *models.AuditRecord) *models.AuditRecord {
	cp := *rec
	cp.Job = slices.Clone(rec.Job)
	cp.Responses = slices.Clone(rec.Responses)
	if rec.Response != nil {
		resp := *rec.Response
		cp.Response = &resp
	}
	return &cp
}
