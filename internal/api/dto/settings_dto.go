package dto

import "github.com/spec-kit/triage-engine/internal/domain"

// SLATierPayload is one priority's budgets on the wire.
type SLATierPayload struct {
	FirstResponseMinutes int `json:"first_response_minutes"`
	ResolutionHours      int `json:"resolution_hours"`
	EscalationHours      int `json:"escalation_hours"`
}

// SLAPolicyPayload is the body of GET and PUT /settings/sla.
type SLAPolicyPayload struct {
	High   SLATierPayload `json:"High"`
	Medium SLATierPayload `json:"Medium"`
	Low    SLATierPayload `json:"Low"`
}

// ToDomain converts the payload.
func (p SLAPolicyPayload) ToDomain() domain.SLAPolicy {
	return domain.SLAPolicy{
		High:   domain.SLATier(p.High),
		Medium: domain.SLATier(p.Medium),
		Low:    domain.SLATier(p.Low),
	}
}

// SLAPolicyFromDomain converts a stored policy.
func SLAPolicyFromDomain(p domain.SLAPolicy) SLAPolicyPayload {
	return SLAPolicyPayload{
		High:   SLATierPayload(p.High),
		Medium: SLATierPayload(p.Medium),
		Low:    SLATierPayload(p.Low),
	}
}
