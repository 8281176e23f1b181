package service

import (
	"testing"

	"github.com/spec-kit/triage-engine/internal/domain"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		in   DecisionInput
		want domain.Action
	}{
		{"high escalates", DecisionInput{Priority: ptr(domain.PriorityHigh), Confidence: ptr(0.99)}, domain.ActionEscalate},
		{"confident low resolves", DecisionInput{Priority: ptr(domain.PriorityLow), Confidence: ptr(0.85)}, domain.ActionAutoResolve},
		{"medium acks", DecisionInput{Priority: ptr(domain.PriorityMedium), Confidence: ptr(0.5)}, domain.ActionAutoAckOnly},
		{"security flag overrides low", DecisionInput{Priority: ptr(domain.PriorityLow), Confidence: ptr(0.99), RiskFlags: []string{"security"}}, domain.ActionEscalate},
		{"privacy flag escalates", DecisionInput{Priority: ptr(domain.PriorityMedium), Confidence: ptr(0.1), RiskFlags: []string{"Privacy"}}, domain.ActionEscalate},
		{"threshold is inclusive", DecisionInput{Priority: ptr(domain.PriorityLow), Confidence: ptr(0.8)}, domain.ActionAutoResolve},
		{"just below threshold", DecisionInput{Priority: ptr(domain.PriorityLow), Confidence: ptr(0.79)}, domain.ActionAutoAckOnly},
		{"missing fields", DecisionInput{}, domain.ActionAutoAckOnly},
		{"missing priority counts as low", DecisionInput{Confidence: ptr(0.9)}, domain.ActionAutoResolve},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.in); got != tc.want {
				t.Fatalf("Decide = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestActionOutcome(t *testing.T) {
	status, queue, role := ActionOutcome(domain.ActionEscalate)
	if status != domain.TicketStatusActive || queue == nil || *queue != domain.EscalationQueue || role != domain.UserRoleAdmin {
		t.Fatalf("escalate outcome = %s %v %s", status, queue, role)
	}
	status, queue, role = ActionOutcome(domain.ActionAutoResolve)
	if status != domain.TicketStatusResolved || queue != nil || role != domain.UserRoleAgent {
		t.Fatalf("resolve outcome = %s %v %s", status, queue, role)
	}
	status, queue, role = ActionOutcome(domain.ActionAutoAckOnly)
	if status != domain.TicketStatusActive || queue != nil || role != domain.UserRoleAgent {
		t.Fatalf("ack outcome = %s %v %s", status, queue, role)
	}
}
