package domain

import "strings"

// Category is the predicted support category of a ticket.
type Category string

const (
	CategoryGeneral       Category = "General"
	CategoryBilling       Category = "Billing"
	CategoryAccountAccess Category = "Account_Access"
	CategoryTechnical     Category = "Technical"
	CategorySecurity      Category = "Security"
	CategoryProduct       Category = "Product"
	CategoryFeedback      Category = "Feedback"
)

// Categories lists every valid category label.
var Categories = []Category{
	CategoryGeneral,
	CategoryBilling,
	CategoryAccountAccess,
	CategoryTechnical,
	CategorySecurity,
	CategoryProduct,
	CategoryFeedback,
}

// Valid reports whether c is a known category label.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Priority enumerates SLA urgency tiers.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists every tier, most urgent first.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// LoadWeight is the routing weight of one active ticket at this priority.
func (p Priority) LoadWeight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// Risk flags attached by the classifier.
const (
	RiskFlagSecurity  = "security"
	RiskFlagPrivacy   = "privacy"
	RiskFlagBilling   = "billing"
	RiskFlagAccess    = "access"
	RiskFlagTechnical = "technical"
	RiskFlagProduct   = "product"
	RiskFlagFeedback  = "feedback"
)

// ClassificationResult is the ephemeral output of one classifier run.
type ClassificationResult struct {
	Category   Category `json:"category"`
	Priority   Priority `json:"priority"`
	Confidence float64  `json:"confidence"`
	RiskFlags  []string `json:"risk_flags"`
}

// HasRiskFlag compares case-insensitively.
func HasRiskFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Action is the automated next step chosen for a ticket.
type Action string

const (
	ActionAutoAckOnly Action = "AUTO_ACK_ONLY"
	ActionAutoResolve Action = "AUTO_RESOLVE"
	ActionEscalate    Action = "ESCALATE"
)
