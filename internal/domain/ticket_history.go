package domain

import "time"

// TicketChangeType captures what the engine did to a ticket.
type TicketChangeType string

const (
	ChangeTypeTriaged      TicketChangeType = "TRIAGED"
	ChangeTypeAssignee     TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeTriageFailed TicketChangeType = "TRIAGE_FAILED"
)

// TicketHistory is an immutable operator trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangeType TicketChangeType
	NewValue   map[string]any
	CreatedAt  time.Time
}
