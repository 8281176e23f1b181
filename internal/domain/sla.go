package domain

import (
	"fmt"
	"time"
)

// SLATier holds the time budgets for one priority.
type SLATier struct {
	FirstResponseMinutes int `json:"first_response_minutes" yaml:"first_response_minutes"`
	ResolutionHours      int `json:"resolution_hours" yaml:"resolution_hours"`
	EscalationHours      int `json:"escalation_hours" yaml:"escalation_hours"`
}

// SLAPolicy maps every priority to its tier.
type SLAPolicy struct {
	High   SLATier `json:"High" yaml:"High"`
	Medium SLATier `json:"Medium" yaml:"Medium"`
	Low    SLATier `json:"Low" yaml:"Low"`
}

// DefaultSLAPolicy is used until an operator stores a policy.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		High:   SLATier{FirstResponseMinutes: 60, ResolutionHours: 24, EscalationHours: 2},
		Medium: SLATier{FirstResponseMinutes: 240, ResolutionHours: 72, EscalationHours: 8},
		Low:    SLATier{FirstResponseMinutes: 1440, ResolutionHours: 168, EscalationHours: 24},
	}
}

// Tier returns the budgets for p.
func (p SLAPolicy) Tier(priority Priority) (SLATier, error) {
	switch priority {
	case PriorityHigh:
		return p.High, nil
	case PriorityMedium:
		return p.Medium, nil
	case PriorityLow:
		return p.Low, nil
	default:
		return SLATier{}, fmt.Errorf("unknown priority %q", priority)
	}
}

// Validate requires every value to be a positive integer.
func (p SLAPolicy) Validate() map[string]any {
	problems := map[string]any{}
	for _, pr := range Priorities {
		tier, _ := p.Tier(pr)
		if tier.FirstResponseMinutes <= 0 {
			problems[string(pr)+".first_response_minutes"] = "must be a positive integer"
		}
		if tier.ResolutionHours <= 0 {
			problems[string(pr)+".resolution_hours"] = "must be a positive integer"
		}
		if tier.EscalationHours <= 0 {
			problems[string(pr)+".escalation_hours"] = "must be a positive integer"
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// DueDates are the absolute deadlines computed for a ticket.
type DueDates struct {
	FirstResponseDue time.Time
	ResolutionDue    time.Time
	EscalationDue    time.Time
}

// BreachCounts reports rows moved by one sweep pass.
type BreachCounts struct {
	FirstResponse int64
	Resolution    int64
}
