package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/repository"
	apperrors "github.com/spec-kit/triage-engine/pkg/util/errorutil"
)

// ComputeDueDates derives the three deadlines from the creation time and the
// tier that matches priority. An unknown priority is an error.
func ComputeDueDates(createdAt time.Time, priority domain.Priority, policy domain.SLAPolicy) (domain.DueDates, error) {
	tier, err := policy.Tier(priority)
	if err != nil {
		return domain.DueDates{}, err
	}
	return domain.DueDates{
		FirstResponseDue: createdAt.Add(time.Duration(tier.FirstResponseMinutes) * time.Minute),
		ResolutionDue:    createdAt.Add(time.Duration(tier.ResolutionHours) * time.Hour),
		EscalationDue:    createdAt.Add(time.Duration(tier.EscalationHours) * time.Hour),
	}, nil
}

// SLAService reads and writes the active SLA policy.
type SLAService struct {
	policies repository.SLAPolicyRepository
	logger   *zap.Logger
}

// NewSLAService creates the service.
func NewSLAService(policies repository.SLAPolicyRepository, logger *zap.Logger) *SLAService {
	return &SLAService{policies: policies, logger: logger}
}

// GetPolicy returns the stored policy or the configured fallback.
func (s *SLAService) GetPolicy(ctx context.Context) (domain.SLAPolicy, error) {
	policy, err := s.policies.Get(ctx)
	if err != nil {
		return domain.SLAPolicy{}, apperrors.NewUnavailable("sla_policy_store", err)
	}
	return policy, nil
}

// UpdatePolicy validates and stores policy. Tickets already triaged keep
// their deadlines.
func (s *SLAService) UpdatePolicy(ctx context.Context, policy domain.SLAPolicy) (domain.SLAPolicy, error) {
	if problems := policy.Validate(); problems != nil {
		return domain.SLAPolicy{}, apperrors.NewValidationError("invalid sla policy", problems)
	}
	if err := s.policies.Set(ctx, policy); err != nil {
		return domain.SLAPolicy{}, apperrors.NewUnavailable("sla_policy_store", err)
	}
	s.logger.Info("sla policy updated",
		zap.Int("high_first_response_minutes", policy.High.FirstResponseMinutes),
		zap.Int("medium_first_response_minutes", policy.Medium.FirstResponseMinutes),
		zap.Int("low_first_response_minutes", policy.Low.FirstResponseMinutes))
	return policy, nil
}

// DueDatesFor loads the current policy and computes deadlines.
func (s *SLAService) DueDatesFor(ctx context.Context, createdAt time.Time, priority domain.Priority) (domain.DueDates, error) {
	policy, err := s.policies.Get(ctx)
	if err != nil {
		return domain.DueDates{}, err
	}
	return ComputeDueDates(createdAt, priority, policy)
}
