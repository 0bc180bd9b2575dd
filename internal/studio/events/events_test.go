package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu          sync.Mutex
	bodies      [][]byte
	contentType string
	err         error
	started     chan struct{}
	gate        chan struct{}
}

func (b *fakeBroker) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if b.started != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
	}
	if b.gate != nil {
		<-b.gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies = append(b.bodies, body)
	b.contentType = contentType
	return b.err
}

func (b *fakeBroker) published() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.bodies...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTransitionEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	job := domain.Job{
		ID:             "J1",
		Phase:          domain.PhaseDone,
		Progress:       100,
		ResultLocation: "https://host/v/J1.mp4",
		UpdatedAt:      at,
	}

	ev := NewTransitionEvent("s-1", "demo.myshopify.com", 4, job)

	require.NoError(t, ev.Validate())
	assert.Equal(t, "s-1", ev.SessionID)
	assert.Equal(t, 4, ev.Seq)
	assert.Equal(t, "demo.myshopify.com", ev.ShopID)
	assert.Equal(t, "J1", ev.JobID)
	assert.Equal(t, domain.PhaseDone, ev.Phase)
	assert.Equal(t, 100, ev.Progress)
	assert.Equal(t, "https://host/v/J1.mp4", ev.ResultLocation)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.True(t, at.Equal(ev.OccurredAt))

	other := NewTransitionEvent("s-1", "", 4, job)
	assert.NotEqual(t, ev.EventID, other.EventID)
}

func TestDecode(t *testing.T) {
	valid := NewTransitionEvent("s-1", "shop", 2, domain.Job{Phase: domain.PhaseQueued, ID: "J1"})
	body, err := valid.Encode()
	require.NoError(t, err)

	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, valid.EventID, got.EventID)
	assert.Equal(t, domain.PhaseQueued, got.Phase)
	assert.Equal(t, 2, got.Seq)
	assert.True(t, valid.OccurredAt.Equal(got.OccurredAt))

	tests := []struct {
		name   string
		mutate func(m map[string]any)
		raw    string
	}{
		{name: "not json", raw: "{oops"},
		{name: "event id not uuid", mutate: func(m map[string]any) { m["event_id"] = "42" }},
		{name: "missing session", mutate: func(m map[string]any) { delete(m, "session_id") }},
		{name: "missing seq", mutate: func(m map[string]any) { delete(m, "seq") }},
		{name: "unknown phase", mutate: func(m map[string]any) { m["phase"] = "exploded" }},
		{name: "progress out of range", mutate: func(m map[string]any) { m["progress"] = 140 }},
		{name: "missing timestamp", mutate: func(m map[string]any) { delete(m, "occurred_at") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(tt.raw)
			if tt.mutate != nil {
				var m map[string]any
				require.NoError(t, json.Unmarshal(body, &m))
				tt.mutate(m)
				raw, err = json.Marshal(m)
				require.NoError(t, err)
			}

			_, err := Decode(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestPublisher_PublishesInOrder(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(&Config{Broker: broker, Logger: discardLogger()})

	seq := 0
	obs := p.Observer("s-1", "shop", func() int { seq++; return seq })
	obs.OnTransition(domain.Job{Phase: domain.PhaseSubmitting})
	obs.OnTransition(domain.Job{Phase: domain.PhaseQueued, ID: "J1"})
	obs.OnTransition(domain.Job{Phase: domain.PhaseDone, ID: "J1", Progress: 100, ResultLocation: "https://h/v.mp4"})

	p.Close()

	bodies := broker.published()
	require.Len(t, bodies, 3)
	assert.Equal(t, ContentType, broker.contentType)

	var phases []domain.Phase
	var seqs []int
	for _, b := range bodies {
		ev, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, "s-1", ev.SessionID)
		phases = append(phases, ev.Phase)
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []domain.Phase{domain.PhaseSubmitting, domain.PhaseQueued, domain.PhaseDone}, phases)
	assert.Equal(t, []int{1, 2, 3}, seqs)
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	broker := &fakeBroker{started: make(chan struct{}, 1), gate: make(chan struct{})}
	p := NewPublisher(&Config{Broker: broker, Logger: discardLogger(), BufferSize: 1})

	ev := func(phase domain.Phase) TransitionEvent {
		return NewTransitionEvent("s-1", "", 1, domain.Job{Phase: phase})
	}

	require.True(t, p.Enqueue(ev(domain.PhaseSubmitting)))
	select {
	case <-broker.started:
	case <-time.After(time.Second):
		t.Fatal("publisher did not pick up the first event")
	}

	assert.True(t, p.Enqueue(ev(domain.PhaseQueued)))
	assert.False(t, p.Enqueue(ev(domain.PhaseProcessing)))
	assert.Equal(t, 1, p.Dropped())

	close(broker.gate)
	p.Close()

	assert.Len(t, broker.published(), 2)
}

func TestPublisher_BrokerErrorDoesNotStopDelivery(t *testing.T) {
	broker := &fakeBroker{err: errors.New("channel closed")}
	p := NewPublisher(&Config{Broker: broker, Logger: discardLogger()})

	p.Enqueue(NewTransitionEvent("s-1", "", 1, domain.Job{Phase: domain.PhaseSubmitting}))
	p.Enqueue(NewTransitionEvent("s-1", "", 2, domain.Job{Phase: domain.PhaseFailed}))
	p.Close()

	assert.Len(t, broker.published(), 2)
}

func TestPublisher_CloseIsIdempotent(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(&Config{Broker: broker, Logger: discardLogger()})

	p.Close()
	p.Close()

	assert.False(t, p.Enqueue(NewTransitionEvent("s-1", "", 1, domain.Job{Phase: domain.PhaseQueued})))
	assert.Empty(t, broker.published())
}
