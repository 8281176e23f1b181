package domain

import (
	"slices"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusUntriaged             TicketStatus = "untriaged"
	TicketStatusActive                TicketStatus = "active"
	TicketStatusEscalated             TicketStatus = "escalated"
	TicketStatusResolved              TicketStatus = "resolved"
	TicketStatusBreachedFirstResponse TicketStatus = "breached_first_response"
	TicketStatusBreachedResolution    TicketStatus = "breached_resolution"
)

// IsBreached reports whether the status is one of the sweeper-owned breach states.
func (s TicketStatus) IsBreached() bool {
	return s == TicketStatusBreachedFirstResponse || s == TicketStatusBreachedResolution
}

// EscalationQueue is the queue label given to escalated tickets.
const EscalationQueue = "escalation"

// Ticket is the aggregate the triage engine reads and partially mutates.
type Ticket struct {
	ID      string
	Source  *string
	Email   *string
	Subject string
	Body    string

	Category   *Category
	Priority   *Priority
	Confidence *float64
	RiskFlags  []string

	SuggestedReply *string
	Action         *Action
	Status         TicketStatus
	AssignedTo     *string
	Queue          *string

	FirstResponseDue *time.Time
	ResolutionDue    *time.Time
	EscalationDue    *time.Time

	FirstResponseSentAt *time.Time
	FirstResponseText   *string
	ResolvedAt          *time.Time
	EscalatedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TriageUpdate is the single write produced by a triage run.
type TriageUpdate struct {
	Classification ClassificationResult
	SuggestedReply *string
	DueDates       *DueDates
	Action         Action
	Status         TicketStatus
	Queue          *string
	At             time.Time
}

// ApplyTriage merges a triage write into the ticket. SLA dates, resolved_at
// and escalated_at are only set when absent; a resolved ticket stays resolved
// and a breached ticket keeps its breach unless the run resolves it.
func (t *Ticket) ApplyTriage(u TriageUpdate) {
	cls := u.Classification
	t.Category = &cls.Category
	t.Priority = &cls.Priority
	t.Confidence = &cls.Confidence
	t.RiskFlags = slices.Clone(cls.RiskFlags)
	t.SuggestedReply = u.SuggestedReply
	action := u.Action
	t.Action = &action
	t.Queue = u.Queue

	if u.DueDates != nil {
		t.FirstResponseDue = coalesceTime(t.FirstResponseDue, u.DueDates.FirstResponseDue)
		t.ResolutionDue = coalesceTime(t.ResolutionDue, u.DueDates.ResolutionDue)
		t.EscalationDue = coalesceTime(t.EscalationDue, u.DueDates.EscalationDue)
	}
	if u.Action == ActionEscalate {
		t.EscalatedAt = coalesceTime(t.EscalatedAt, u.At)
	}

	switch {
	case t.ResolvedAt != nil:
		t.Status = TicketStatusResolved
	case u.Status == TicketStatusResolved:
		t.Status = TicketStatusResolved
		t.ResolvedAt = coalesceTime(t.ResolvedAt, u.At)
	case t.Status.IsBreached():
	default:
		t.Status = u.Status
	}
	t.UpdatedAt = u.At
}

// FirstResponseBreached reports whether the sweeper should mark a first-response breach at now.
func (t *Ticket) FirstResponseBreached(now time.Time) bool {
	if t.Status != TicketStatusUntriaged && t.Status != TicketStatusActive {
		return false
	}
	return t.FirstResponseDue != nil && t.FirstResponseSentAt == nil && t.FirstResponseDue.Before(now)
}

// ResolutionBreached reports whether the sweeper should mark a resolution breach at now.
func (t *Ticket) ResolutionBreached(now time.Time) bool {
	switch t.Status {
	case TicketStatusActive, TicketStatusEscalated, TicketStatusBreachedFirstResponse:
	default:
		return false
	}
	return t.ResolutionDue != nil && t.ResolvedAt == nil && t.ResolutionDue.Before(now)
}

func coalesceTime(current *time.Time, next time.Time) *time.Time {
	if current != nil {
		return current
	}
	v := next
	return &v
}
