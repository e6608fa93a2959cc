// Package bus defines the broadcast channel every instance subscribes to.
// A message published by one instance reaches all instances, the publisher
// included.
package bus

import (
	"context"
	"sync"
)

// Handler receives one message. It runs on the subscriber goroutine.
type Handler func(ctx context.Context, data []byte)

// Bus is a fan-out pub/sub channel.
type Bus interface {
	Publish(ctx context.Context, channel string, data []byte) error
	// Subscribe delivers messages to handler until ctx ends.
	Subscribe(ctx context.Context, channel string, handler Handler) error
}

// Memory is an in-process Bus. Publish delivers synchronously to every
// subscriber, which makes multi-instance behaviour deterministic in tests.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

var _ Bus = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]Handler)}
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte) error {
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subs[channel]))
	for _, h := range m.subs[channel] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, append([]byte(nil), data...))
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	id := m.Attach(channel, handler)
	defer m.detach(channel, id)
	<-ctx.Done()
	return nil
}

// Attach subscribes without blocking and returns the subscription id.
// Subscriptions made with Attach last for the life of the bus.
func (m *Memory) Attach(channel string, handler Handler) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]Handler)
	}
	m.subs[channel][m.nextID] = handler
	return m.nextID
}

func (m *Memory) detach(channel string, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs[channel], id)
	if len(m.subs[channel]) == 0 {
		delete(m.subs, channel)
	}
}

// Subscribers is the number of live subscriptions on channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}
