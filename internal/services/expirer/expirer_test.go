package expirer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/codemavricks/zerohunger/internal/broker/messages"
	"github.com/codemavricks/zerohunger/internal/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	calls   int
	batches [][]*models.Donation
	err     error
}

func (r *fakeRepo) ExpireDueDonations(ctx context.Context, now time.Time, limit int) ([]*models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.batches) == 0 {
		return nil, nil
	}
	b := r.batches[0]
	r.batches = r.batches[1:]
	return b, nil
}

type capturingProducer struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (p *capturingProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, value)
	return nil
}

func donation(id uint64, title string) *models.Donation {
	return &models.Donation{ID: id, DonorID: 7, Title: title, Status: models.DonationStatusExpired}
}

func TestExpirer_RunOnce_PublishesEventPerDonation(t *testing.T) {
	repo := &fakeRepo{batches: [][]*models.Donation{{donation(1, "bread"), donation(2, "soup")}}}
	prod := &capturingProducer{}
	e := New(repo, prod, "donations.events").WithSettings(time.Hour, 100)

	e.runOnce(context.Background())

	require.Len(t, prod.messages, 2)
	var ev messages.DonationEvent
	require.NoError(t, json.Unmarshal(prod.messages[0], &ev))
	require.Equal(t, messages.TypeDonationExpired, ev.Type)
	require.EqualValues(t, 1, ev.DonationID)
	require.Equal(t, "bread", ev.DonationTitle)
	require.EqualValues(t, 7, ev.DonorID)
	require.NotEmpty(t, ev.EventID)

	st := e.Stats()
	require.EqualValues(t, 2, st.TotalExpired)
	require.EqualValues(t, 0, st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestExpirer_RunOnce_DrainsBacklogAcrossBatches(t *testing.T) {
	repo := &fakeRepo{batches: [][]*models.Donation{
		{donation(1, "a"), donation(2, "b")},
		{donation(3, "c")},
	}}
	prod := &capturingProducer{}
	e := New(repo, prod, "donations.events").WithSettings(time.Hour, 2)

	e.runOnce(context.Background())

	require.Equal(t, 2, repo.calls)
	require.Len(t, prod.messages, 3)
	require.EqualValues(t, 3, e.Stats().TotalExpired)
}

func TestExpirer_RunOnce_RecordsRepoError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	prod := &capturingProducer{}
	e := New(repo, prod, "donations.events").WithSettings(time.Hour, 100)

	e.runOnce(context.Background())

	st := e.Stats()
	require.EqualValues(t, 1, st.TotalErrors)
	require.Equal(t, "db down", st.LastError)
	require.Empty(t, prod.messages)
}

func TestExpirer_RunOnce_PublishFailureDoesNotStopBatch(t *testing.T) {
	repo := &fakeRepo{batches: [][]*models.Donation{{donation(1, "a"), donation(2, "b")}}}
	prod := &capturingProducer{err: errors.New("broker down")}
	e := New(repo, prod, "donations.events").WithSettings(time.Hour, 100)

	e.runOnce(context.Background())

	st := e.Stats()
	require.EqualValues(t, 2, st.TotalExpired)
	require.EqualValues(t, 2, st.TotalErrors)
	require.Equal(t, "broker down", st.LastError)
}

func TestExpirer_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	e := New(repo, &capturingProducer{}, "donations.events").WithSettings(5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	err := e.Run(ctx)
	require.Error(t, err)
	repo.mu.Lock()
	calls := repo.calls
	repo.mu.Unlock()
	require.GreaterOrEqual(t, calls, 1)
}

func TestExpirer_Trigger_ForcesImmediateSweep(t *testing.T) {
	repo := &fakeRepo{batches: [][]*models.Donation{{donation(1, "a")}}}
	prod := &capturingProducer{}
	e := New(repo, prod, "donations.events").WithSettings(time.Hour, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Trigger()
	require.Eventually(t, func() bool {
		prod.mu.Lock()
		defer prod.mu.Unlock()
		return len(prod.messages) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Error(t, <-done)
	require.NotNil(t, e.Stats().LastTriggerAt)
}
