package expirer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codemavricks/zerohunger/internal/broker/messages"
	"github.com/codemavricks/zerohunger/internal/models"
)

type Repository interface {
	ExpireDueDonations(ctx context.Context, now time.Time, limit int) ([]*models.Donation, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Expirer periodically sweeps available donations whose expiry has passed,
// flips them to expired and announces each one on the events topic so the
// API can drop its cached listing.
type Expirer struct {
	repo     Repository
	producer Producer
	topic    string

	pollInterval time.Duration
	batchSize    int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalExpired        atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, topic string) *Expirer {
	return &Expirer{
		repo:              repo,
		producer:          producer,
		topic:             topic,
		pollInterval:      30 * time.Second,
		batchSize:         100,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (e *Expirer) WithSettings(pollInterval time.Duration, batchSize int) *Expirer {
	if pollInterval > 0 {
		e.pollInterval = pollInterval
	}
	if batchSize > 0 {
		e.batchSize = batchSize
	}
	return e
}

// Trigger forces an immediate sweep (best-effort, non-blocking).
func (e *Expirer) Trigger() {
	e.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalExpired  int64      `json:"totalExpired"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (e *Expirer) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, e.startedAtUnixNano).UTC(),
		TotalExpired: e.totalExpired.Load(),
		TotalErrors:  e.totalErrors.Load(),
	}
	if n := e.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := e.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	e.lastErrorMu.Lock()
	st.LastError = e.lastError
	e.lastErrorMu.Unlock()
	return st
}

func (e *Expirer) Run(ctx context.Context) error {
	t := time.NewTicker(e.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			e.runOnce(ctx)
		case <-e.triggerCh:
			e.runOnce(ctx)
		}
	}
}

func (e *Expirer) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	e.lastCycleUnixNano.Store(now.UnixNano())

	// Drain everything due, one batch at a time, so a backlog after
	// downtime clears in a single cycle.
	for {
		expired, err := e.repo.ExpireDueDonations(ctx, now, e.batchSize)
		if err != nil {
			e.recordError(err)
			slog.Error("expire due donations", "error", err.Error())
			return
		}
		if len(expired) == 0 {
			return
		}
		e.totalExpired.Add(int64(len(expired)))

		for _, d := range expired {
			ev := messages.NewDonationEvent(messages.TypeDonationExpired, d.ID, d.DonorID)
			ev.DonationTitle = d.Title
			b, err := json.Marshal(ev)
			if err != nil {
				e.recordError(err)
				continue
			}
			key := []byte(fmt.Sprintf("%d", d.ID))
			if err := e.producer.Publish(ctx, e.topic, key, b); err != nil {
				// The status flip is already committed; the event is
				// best-effort and the listing query filters by expiry anyway.
				e.recordError(err)
				slog.Error("publish donation expired", "donation_id", d.ID, "error", err.Error())
			}
		}

		if len(expired) < e.batchSize {
			return
		}
	}
}

func (e *Expirer) recordError(err error) {
	e.totalErrors.Add(1)
	e.lastErrorMu.Lock()
	e.lastError = err.Error()
	e.lastErrorMu.Unlock()
}
