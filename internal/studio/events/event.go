// Package events turns controller transitions into broker messages.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/google/uuid"
)

// ContentType of every published event
const ContentType = "application/json"

// ErrInvalidEvent is returned when a message body is not a usable transition event
var ErrInvalidEvent = errors.New("invalid transition event")

// TransitionEvent is one observed job state change of a studio session
type TransitionEvent struct {
	EventID        string       `json:"event_id" db:"event_id"`
	SessionID      string       `json:"session_id" db:"session_id"`
	Seq            int          `json:"seq" db:"seq"` // 1-based position among the session's transitions
	ShopID         string       `json:"shop_id,omitempty" db:"shop_id"`
	JobID          string       `json:"job_id,omitempty" db:"job_id"`
	Phase          domain.Phase `json:"phase" db:"phase"`
	Progress       int          `json:"progress" db:"progress"`
	ResultLocation string       `json:"result_location,omitempty" db:"result_location"`
	ErrorDetail    string       `json:"error_detail,omitempty" db:"error_detail"`
	OccurredAt     time.Time    `json:"occurred_at" db:"occurred_at"`
}

// NewTransitionEvent captures job as the seq-th transition of a session
func NewTransitionEvent(sessionID, shopID string, seq int, job domain.Job) TransitionEvent {
	occurred := job.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	return TransitionEvent{
		EventID:        uuid.NewString(),
		SessionID:      sessionID,
		Seq:            seq,
		ShopID:         shopID,
		JobID:          job.ID,
		Phase:          job.Phase,
		Progress:       job.Progress,
		ResultLocation: job.ResultLocation,
		ErrorDetail:    job.ErrorDetail,
		OccurredAt:     occurred.UTC(),
	}
}

// Validate checks the fields the journal relies on
func (e *TransitionEvent) Validate() error {
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("%w: event_id %q is not a UUID", ErrInvalidEvent, e.EventID)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", ErrInvalidEvent)
	}
	if e.Seq < 1 {
		return fmt.Errorf("%w: seq %d must be positive", ErrInvalidEvent, e.Seq)
	}
	if !e.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidEvent, e.Phase)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidEvent, e.Progress)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	return nil
}

// Encode marshals the event for publishing
func (e *TransitionEvent) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transition event: %w", err)
	}
	return body, nil
}

// Decode parses and validates a message body
func Decode(body []byte) (*TransitionEvent, error) {
	var ev TransitionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
