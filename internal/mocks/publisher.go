package mocks

import (
	"context"
	"sync"

	"github.com/akshaysangma/irec-fractionalizer/internal/model"
)

// MockPublisher records published events.
type MockPublisher struct {
	sync.RWMutex
	events []*model.Event
	err    error
}

// NewMockPublisher creates mock publisher that fails every publish with err when err is not nil.
func NewMockPublisher(err error) *MockPublisher {
	return &MockPublisher{err: err}
}

func (m *MockPublisher) Connect(context.Context) error { return nil }

func (m *MockPublisher) Close() error { return nil }

// PublishEvent stores the event. It fails on a cancelled ctx, as a broker write would.
func (m *MockPublisher) PublishEvent(ctx context.Context, event *model.Event) error {
	if m.err != nil {
		return m.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()

	m.events = append(m.events, event)
	return nil
}

// Events returns the published events.
func (m *MockPublisher) Events() []*model.Event {
	m.RLock()
	defer m.RUnlock()

	return append([]*model.Event(nil), m.events...)
}

// Types returns the published event types in order.
func (m *MockPublisher) Types() []model.EventType {
	m.RLock()
	defer m.RUnlock()

	types := make([]model.EventType, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}
