package transport

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is an in-process transport. Each emitted record is handed to the
// handler on its own goroutine, so emitters never wait on listeners.
type Memory struct {
	mu      sync.RWMutex
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  bool
}

// NewMemory creates an in-process transport delivering to handler.
func NewMemory(handler Handler, logger *slog.Logger) *Memory {
	return &Memory{handler: handler, logger: logger}
}

// Emit delivers rec asynchronously. Records emitted after Close are dropped.
func (m *Memory) Emit(ctx context.Context, rec *Record) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || m.handler == nil {
		m.logger.WarnContext(ctx, "memory transport dropped record", "topic", rec.Topic)
		return
	}
	// Deliveries must not inherit the emitter's cancellation.
	deliverCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.handler.Handle(deliverCtx, rec); err != nil {
			m.logger.ErrorContext(deliverCtx, "memory transport handler failed",
				"topic", rec.Topic,
				"error", err,
			)
		}
	}()
}

// Drain waits for every in-flight delivery.
func (m *Memory) Drain() {
	m.wg.Wait()
}

// Close stops accepting records and waits for in-flight deliveries.
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}
