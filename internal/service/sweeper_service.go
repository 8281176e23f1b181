package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/repository"
)

// SweeperService moves overdue tickets into breach states.
type SweeperService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// SweeperDependencies bundles collaborators.
type SweeperDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewSweeperService creates the service.
func NewSweeperService(deps SweeperDependencies) *SweeperService {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SweeperService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        now,
	}
}

// SweepOnce runs one pass. Repeating a pass at the same instant changes nothing.
func (s *SweeperService) SweepOnce(ctx context.Context) (domain.BreachCounts, error) {
	ctx, span := observability.Tracer().Start(ctx, "sla.sweep")
	defer span.End()

	now := s.now()
	counts, err := s.tickets.TransitionBreaches(ctx, now)
	if err != nil {
		span.RecordError(err)
		return domain.BreachCounts{}, fmt.Errorf("transition breaches: %w", err)
	}
	s.metrics.RecordSweep(counts.FirstResponse, counts.Resolution)

	if counts.FirstResponse == 0 && counts.Resolution == 0 {
		s.logger.Debug("sla sweep found no breaches")
		return counts, nil
	}
	s.logger.Info("sla sweep flagged breaches",
		zap.Int64("first_response", counts.FirstResponse),
		zap.Int64("resolution", counts.Resolution))
	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventSLABreached,
			Actor:     events.Actor{Type: events.ActorSLASweeper},
			Timestamp: now,
			Payload:   events.SLABreachedPayload{FirstResponse: counts.FirstResponse, Resolution: counts.Resolution},
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return counts, nil
}
