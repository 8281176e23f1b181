package events

import (
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketTriaged   EventType = "ticket_triaged"
	EventTicketAssigned  EventType = "ticket_assigned"
	EventTicketEscalated EventType = "ticket_escalated"
	EventSLABreached     EventType = "sla_breached"
	EventTriageFailed    EventType = "triage_failed"
)

// ActorType identifies which component emitted an event.
type ActorType string

const (
	ActorTriageWorker ActorType = "triage_worker"
	ActorSLASweeper   ActorType = "sla_sweeper"
	ActorUser         ActorType = "user"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID *string   `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketTriagedPayload payload.
type TicketTriagedPayload struct {
	Category   domain.Category     `json:"category"`
	Priority   domain.Priority     `json:"priority"`
	Confidence float64             `json:"confidence"`
	RiskFlags  []string            `json:"risk_flags"`
	Action     domain.Action       `json:"action"`
	Status     domain.TicketStatus `json:"status"`
	Queue      *string             `json:"queue,omitempty"`
	HasReply   bool                `json:"has_reply"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeUserID string          `json:"assignee_user_id"`
	Role           domain.UserRole `json:"role"`
	Sticky         bool            `json:"sticky"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Queue     string   `json:"queue"`
	RiskFlags []string `json:"risk_flags"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	FirstResponse int64 `json:"first_response"`
	Resolution    int64 `json:"resolution"`
}

// TriageFailedPayload payload.
type TriageFailedPayload struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
}
