package dto

// EnqueueTriageResponse answers POST /internal/tickets/:id/triage.
type EnqueueTriageResponse struct {
	TicketID string `json:"ticket_id"`
	// Enqueued is false when a job for the ticket was already pending.
	Enqueued bool `json:"enqueued"`
}

// SweepResponse answers POST /internal/sla/sweep.
type SweepResponse struct {
	FirstResponseBreached int64 `json:"first_response_breached"`
	ResolutionBreached    int64 `json:"resolution_breached"`
}
