package syncer

import (
	"time"

	"github.com/google/uuid"

	"schedsync/internal/schedule"
)

// Op is the closed set of sync operations.
type Op string

const (
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
	OpRefresh    Op = "refresh"
	OpReschedule Op = "reschedule"
)

func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpRefresh, OpReschedule:
		return true
	}
	return false
}

// Request is the immutable mutation envelope submitted by collaborators
// instead of a direct store call.
//
// Retries must use a fresh EventID and reference the original via
// CorrelationID for tracing.
type Request struct {
	// EventID is the caller-generated idempotency key.
	EventID       string `json:"eventId"`
	CorrelationID string `json:"correlationId,omitempty"`

	// Source names the requesting collaborator (e.g. "calendar", "chat-booking").
	Source string `json:"source"`

	Op Op `json:"operation"`

	// TargetID identifies the record for update/delete/refresh/reschedule.
	TargetID string `json:"targetId,omitempty"`

	// Schedule is the full payload for create (and the self-healing
	// update-as-create path).
	Schedule schedule.Schedule `json:"schedule,omitempty"`

	// Patch is the partial payload for update/reschedule.
	Patch *schedule.Patch `json:"patch,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewEventID returns a fresh idempotency key.
func NewEventID() string { return uuid.NewString() }

// ---- Typed event payloads (one struct per output topic) ----

// CompletePayload rides schedule:{create,update,delete}_complete.
type CompletePayload struct {
	EventID       string            `json:"eventId"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Source        string            `json:"source,omitempty"`
	Op            Op                `json:"operation"`
	Schedule      schedule.Schedule `json:"schedule"`

	// Replayed marks a completion re-emitted from the idempotency cache for
	// a duplicate EventID. Consumers with side effects must skip these.
	Replayed bool `json:"replayed,omitempty"`
}

// ErrorPayload rides schedule:sync_error.
type ErrorPayload struct {
	EventID       string `json:"eventId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Op            Op     `json:"operation"`
	Kind          string `json:"kind"` // "validation" | "not_found" | "bad_request"
	Message       string `json:"message"`
}

// ConflictPayload rides schedule:conflict_resolved. It carries the winning
// id and the discarded candidate's title for observability.
type ConflictPayload struct {
	EventID         string `json:"eventId"`
	WinnerID        string `json:"winnerId"`
	DiscardedTitle  string `json:"discardedTitle"`
	ProjectID       string `json:"projectId,omitempty"`
	MeetingSequence int    `json:"meetingSequence,omitempty"`
}

// Error kinds used in ErrorPayload.Kind.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindBadRequest = "bad_request"
)
