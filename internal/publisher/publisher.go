package publisher

import (
	"context"

	"github.com/akshaysangma/irec-fractionalizer/internal/model"
)

// Publisher define the interface to publishing tokenization and purchase events
type Publisher interface {
	// Connect establishes a connection with the message broker
	Connect(ctx context.Context) error

	// Close closes the connection to the message broker
	Close() error

	// PublishEvent publishes a single event to the message broker
	PublishEvent(ctx context.Context, event *model.Event) error
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Connect(context.Context) error { return nil }

func (NopPublisher) Close() error { return nil }

func (NopPublisher) PublishEvent(context.Context, *model.Event) error { return nil }
