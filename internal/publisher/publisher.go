// Package publisher emits sync-completion events so downstream consumers
// can react to fresh data without polling the store.
package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// Event describes one finished sync run.
type Event struct {
	RunID      string         `json:"run_id"`
	Strategy   string         `json:"strategy"`
	Stats      cola.SyncStats `json:"stats"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
}

// Publisher delivers events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
	Close() error
}

// Noop discards every event. Used when no bus is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) (string, error) { return "", nil }
func (Noop) Close() error                                   { return nil }

// Memory collects events in process. Test double.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory returns an empty in-process publisher.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Publish(_ context.Context, event Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return event.RunID, nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
