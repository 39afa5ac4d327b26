// Package bus moves progress events between processes. The pipeline
// publishes; the HTTP service forwards what it receives to its hub.
package bus

import (
	"context"
	"slices"
	"sync"

	"github.com/yungbote/neurobridge-studygen/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}

// Noop discards everything. It is used when no redis is configured and no
// in-process forwarding is wanted.
type Noop struct{}

func (Noop) Publish(context.Context, realtime.Event) error                 { return nil }
func (Noop) StartForwarder(context.Context, func(ev realtime.Event)) error { return nil }
func (Noop) Close() error                                                  { return nil }

// Memory delivers events synchronously to in-process forwarders. A Memory
// built with NewMemory also keeps a copy of everything published.
type Memory struct {
	mu        sync.Mutex
	keep      bool
	events    []realtime.Event
	listeners []func(realtime.Event)
	closed    bool
}

func NewMemory() *Memory { return &Memory{keep: true} }

// NewLocal forwards in-process without retaining events.
func NewLocal() *Memory { return &Memory{} }

func (m *Memory) Publish(ctx context.Context, ev realtime.Event) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.keep {
		m.events = append(m.events, ev)
	}
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

func (m *Memory) StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error {
	if onEvent == nil {
		return errNoCallback
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, onEvent)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.listeners = nil
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []realtime.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]realtime.Event(nil), m.events...)
}
