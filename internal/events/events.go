package events

import (
	"context"
	"sync"
	"time"
)

const Exchange = "barledger.events"

// Routing keys published on Exchange.
const (
	BillOpened      = "bill.opened"
	BillClosed      = "bill.closed"
	BillCancelled   = "bill.cancelled"
	BillUpgraded    = "bill.upgraded"
	OrderAdded      = "order.added"
	OrderCancelled  = "order.cancelled"
	AdjustmentAdded = "adjustment.added"
	ShiftClockIn    = "shift.clock_in"
	ShiftClockOut   = "shift.clock_out"
	ShiftReviewed   = "shift.reviewed"
	ReportSaved     = "report.saved"
)

type Event struct {
	Key        string    `json:"key"`
	StoreID    int64     `json:"store_id"`
	EntityID   string    `json:"entity_id"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

// Recorder keeps published events in memory; tests use it to assert fan-out.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.events))
	for _, event := range r.events {
		keys = append(keys, event.Key)
	}
	return keys
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
