package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the service log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("key", event.Key()).
		Int64("order_id", event.OrderID).
		Str("status", string(event.Status)).
		Str("payment_intent_id", event.PaymentIntentID).
		Str("reason", event.Reason).
		Msg("event published")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types for one order, oldest first.
func (r *Recorder) Types(orderID int64) []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Type
	for _, e := range r.events {
		if e.OrderID == orderID {
			out = append(out, e.Type)
		}
	}
	return out
}
