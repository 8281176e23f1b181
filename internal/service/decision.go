package service

import "github.com/spec-kit/triage-engine/internal/domain"

// AutoResolveConfidence is the minimum confidence for auto-resolving a low priority ticket.
const AutoResolveConfidence = 0.8

// DecisionInput carries the classifier fields the policy looks at. Nil
// priority is treated as Low and nil confidence as 0.
type DecisionInput struct {
	Priority   *domain.Priority
	Confidence *float64
	RiskFlags  []string
}

// Decide picks the automated action. Rules are checked in order.
func Decide(in DecisionInput) domain.Action {
	priority := domain.PriorityLow
	if in.Priority != nil && *in.Priority != "" {
		priority = *in.Priority
	}
	confidence := 0.0
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	if priority == domain.PriorityHigh ||
		domain.HasRiskFlag(in.RiskFlags, domain.RiskFlagSecurity) ||
		domain.HasRiskFlag(in.RiskFlags, domain.RiskFlagPrivacy) {
		return domain.ActionEscalate
	}
	if confidence >= AutoResolveConfidence && priority == domain.PriorityLow {
		return domain.ActionAutoResolve
	}
	return domain.ActionAutoAckOnly
}

// DecideClassification applies Decide to a classifier result.
func DecideClassification(cls domain.ClassificationResult) domain.Action {
	return Decide(DecisionInput{Priority: &cls.Priority, Confidence: &cls.Confidence, RiskFlags: cls.RiskFlags})
}

// ActionOutcome maps an action to the status, queue and assignee role it implies.
func ActionOutcome(action domain.Action) (domain.TicketStatus, *string, domain.UserRole) {
	switch action {
	case domain.ActionAutoResolve:
		return domain.TicketStatusResolved, nil, domain.UserRoleAgent
	case domain.ActionEscalate:
		queue := domain.EscalationQueue
		return domain.TicketStatusActive, &queue, domain.UserRoleAdmin
	default:
		return domain.TicketStatusActive, nil, domain.UserRoleAgent
	}
}
