package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/render-studio/internal/journal/domain"
	renderdomain "github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/cuongbtq/render-studio/internal/studio/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	tag     uint64
	ack     bool
	requeue bool
}

type ackRecorder struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, outcome{tag: tag, ack: true})
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, outcome{tag: tag, requeue: requeue})
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *ackRecorder) get(tag uint64) (outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.outcomes {
		if o.tag == tag {
			return o, true
		}
	}
	return outcome{}, false
}

type fakeConsumer struct {
	prefetch   int
	tag        string
	deliveries chan amqp.Delivery
	consumeErr error
}

func (c *fakeConsumer) Qos(prefetchCount int) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeConsumer) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	c.tag = consumerTag
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	return c.deliveries, nil
}

type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]events.TransitionEvent
	failures int
}

func (s *fakeStore) InsertTransition(ctx context.Context, ev *events.TransitionEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--
		return false, errors.New("connection refused")
	}
	if _, ok := s.rows[ev.EventID]; ok {
		return false, nil
	}
	s.rows[ev.EventID] = *ev
	return true, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type harness struct {
	worker   *Worker
	consumer *fakeConsumer
	store    *fakeStore
	acks     *ackRecorder
}

const testRequeueDelay = 50 * time.Millisecond

func startHarness(t *testing.T, failures int) *harness {
	t.Helper()
	return startHarnessWithDelay(t, failures, testRequeueDelay)
}

func startHarnessWithDelay(t *testing.T, failures int, requeueDelay time.Duration) *harness {
	t.Helper()

	h := &harness{
		consumer: &fakeConsumer{deliveries: make(chan amqp.Delivery)},
		store:    &fakeStore{rows: map[string]events.TransitionEvent{}, failures: failures},
		acks:     &ackRecorder{},
	}
	h.worker = NewWorker(&Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Consumer:    h.consumer,
		Store:       h.store,
		WorkerID:     "journal-test",
		Concurrency:  2,
		RequeueDelay: requeueDelay,
	})

	require.NoError(t, h.worker.Start(context.Background()))
	t.Cleanup(h.worker.Stop)
	return h
}

func (h *harness) deliver(tag uint64, body []byte) {
	h.consumer.deliveries <- amqp.Delivery{
		Acknowledger: h.acks,
		DeliveryTag:  tag,
		Body:         body,
	}
}

func (h *harness) waitOutcome(t *testing.T, tag uint64) outcome {
	t.Helper()
	var got outcome
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = h.acks.get(tag)
		return ok
	}, time.Second, time.Millisecond, "no ack/nack for delivery %d", tag)
	return got
}

func encodedEvent(t *testing.T, phase renderdomain.Phase) (events.TransitionEvent, []byte) {
	t.Helper()
	ev := events.NewTransitionEvent("s-1", "shop", 1, renderdomain.Job{ID: "J1", Phase: phase})
	body, err := ev.Encode()
	require.NoError(t, err)
	return ev, body
}

func TestWorker_JournalsAndAcks(t *testing.T) {
	h := startHarness(t, 0)

	assert.Equal(t, 4, h.consumer.prefetch, "prefetch defaults to twice the concurrency")
	assert.Equal(t, "journal-test", h.consumer.tag)

	ev, body := encodedEvent(t, renderdomain.PhaseQueued)
	h.deliver(1, body)

	got := h.waitOutcome(t, 1)
	assert.True(t, got.ack)
	assert.Equal(t, 1, h.store.count())

	h.store.mu.Lock()
	stored := h.store.rows[ev.EventID]
	h.store.mu.Unlock()
	assert.Equal(t, renderdomain.PhaseQueued, stored.Phase)
	assert.Equal(t, "s-1", stored.SessionID)
}

func TestWorker_MalformedMessageIsDropped(t *testing.T) {
	h := startHarness(t, 0)

	bodies := [][]byte{
		[]byte("not json"),
		[]byte(`{"event_id":"nope","session_id":"s-1","phase":"queued","occurred_at":"2026-01-01T00:00:00Z"}`),
	}
	for i, body := range bodies {
		tag := uint64(i + 1)
		h.deliver(tag, body)

		got := h.waitOutcome(t, tag)
		assert.False(t, got.ack)
		assert.False(t, got.requeue)
	}
	assert.Zero(t, h.store.count())
}

func TestWorker_RedeliveredEventIsAcked(t *testing.T) {
	h := startHarness(t, 0)

	_, body := encodedEvent(t, renderdomain.PhaseDone)
	h.deliver(1, body)
	assert.True(t, h.waitOutcome(t, 1).ack)

	h.deliver(2, body)
	assert.True(t, h.waitOutcome(t, 2).ack)

	assert.Equal(t, 1, h.store.count())
}

func TestWorker_StoreFailureRequeues(t *testing.T) {
	h := startHarness(t, 1)

	_, body := encodedEvent(t, renderdomain.PhaseProcessing)
	start := time.Now()
	h.deliver(1, body)

	got := h.waitOutcome(t, 1)
	assert.GreaterOrEqual(t, time.Since(start), testRequeueDelay, "requeue must wait out the delay")
	assert.False(t, got.ack)
	assert.True(t, got.requeue)
	assert.Zero(t, h.store.count())

	// the broker redelivers
	h.deliver(2, body)
	assert.True(t, h.waitOutcome(t, 2).ack)
	assert.Equal(t, 1, h.store.count())
}

func TestWorker_StopCutsRequeueDelayShort(t *testing.T) {
	h := startHarnessWithDelay(t, 1, time.Minute)

	_, body := encodedEvent(t, renderdomain.PhaseProcessing)
	h.deliver(1, body)

	require.Eventually(t, func() bool {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		return h.store.failures == 0
	}, time.Second, time.Millisecond, "store was never called")
	_, settled := h.acks.get(1)
	assert.False(t, settled, "nack must wait for the delay")

	stopped := make(chan struct{})
	go func() {
		h.worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the requeue delay")
	}

	got, ok := h.acks.get(1)
	require.True(t, ok)
	assert.True(t, got.requeue)
}

func TestWorker_StartFailsWithoutConsumer(t *testing.T) {
	w := NewWorker(&Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Consumer: &fakeConsumer{consumeErr: errors.New("channel closed")},
		Store:    &fakeStore{rows: map[string]events.TransitionEvent{}},
	})

	err := w.Start(context.Background())
	require.Error(t, err)
	w.Stop()
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	h := startHarness(t, 0)

	done := make(chan struct{})
	go func() {
		h.worker.Stop()
		h.worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: domain.NewRetryableError(errors.New("db down")), want: true},
		{name: "wrapped retryable", err: fmt.Errorf("journal: %w", domain.NewRetryableError(errors.New("db down"))), want: true},
		{name: "invalid payload", err: domain.ErrInvalidPayload, want: false},
		{name: "unknown", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}
