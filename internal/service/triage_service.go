package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/repository"
	apperrors "github.com/spec-kit/triage-engine/pkg/util/errorutil"
)

// PassageRetriever returns knowledge passages for query text.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.Passage, error)
}

// JobQueue accepts triage jobs keyed by ticket id.
type JobQueue interface {
	Enqueue(ctx context.Context, ticketID string) (bool, error)
}

// TriageService runs the per-ticket triage pipeline.
type TriageService struct {
	tickets    repository.TicketRepository
	classifier *Classifier
	retriever  PassageRetriever
	drafter    *ReplyDrafter
	sla        *SLAService
	assigner   *AssignmentService
	queue      JobQueue
	dispatcher events.Dispatcher
	logger     *zap.Logger
	topK       int
	now        func() time.Time
}

// TriageDependencies bundles collaborators.
type TriageDependencies struct {
	TicketRepo repository.TicketRepository
	Classifier *Classifier
	Retriever  PassageRetriever
	Drafter    *ReplyDrafter
	SLA        *SLAService
	Assigner   *AssignmentService
	Queue      JobQueue
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	TopK       int
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// NewTriageService creates the service.
func NewTriageService(deps TriageDependencies) *TriageService {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	topK := deps.TopK
	if topK <= 0 {
		topK = 5
	}
	return &TriageService{
		tickets:    deps.TicketRepo,
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		drafter:    deps.Drafter,
		sla:        deps.SLA,
		assigner:   deps.Assigner,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		topK:       topK,
		now:        now,
	}
}

// TriageResult summarises one successful run.
type TriageResult struct {
	TicketID       string
	Classification domain.ClassificationResult
	Action         domain.Action
	Status         domain.TicketStatus
	Queue          *string
	HasReply       bool
	HasDueDates    bool
	Assignment     *Assignment
}

// Enqueue schedules triage for ticketID. It reports false when a job for the
// ticket is already pending.
func (s *TriageService) Enqueue(ctx context.Context, ticketID string) (bool, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return false, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	if s.queue == nil {
		return false, apperrors.NewUnavailable("queue", errors.New("queue not configured"))
	}
	enqueued, err := s.queue.Enqueue(ctx, ticketID)
	if err != nil {
		return false, apperrors.NewUnavailable("queue", err)
	}
	s.logger.Info("triage enqueued", zap.String("ticket_id", ticketID), zap.Bool("deduplicated", !enqueued))
	return enqueued, nil
}

// Run executes the pipeline for one ticket. Only a missing ticket or a failed
// persistence write is returned as an error; everything else degrades.
func (s *TriageService) Run(ctx context.Context, ticketID string) (*TriageResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "triage.run",
		trace.WithAttributes(attribute.String("ticket.id", ticketID)))
	defer span.End()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, repository.ErrTicketNotFound) {
			err = fmt.Errorf("load ticket: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load ticket")
		return nil, err
	}

	cls := s.classify(ctx, ticket)
	reply := s.draftReply(ctx, ticket)
	due := s.dueDates(ctx, ticket, cls.Priority)
	action := DecideClassification(cls)
	status, queue, role := ActionOutcome(action)
	span.SetAttributes(
		attribute.String("triage.category", string(cls.Category)),
		attribute.String("triage.priority", string(cls.Priority)),
		attribute.String("triage.action", string(action)),
	)

	update := domain.TriageUpdate{
		Classification: cls,
		SuggestedReply: reply,
		DueDates:       due,
		Action:         action,
		Status:         status,
		Queue:          queue,
		At:             s.now(),
	}
	if err := s.tickets.UpdateTriage(ctx, ticketID, update); err != nil {
		err = fmt.Errorf("persist triage: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist triage")
		return nil, err
	}

	result := &TriageResult{
		TicketID:       ticketID,
		Classification: cls,
		Action:         action,
		Status:         status,
		Queue:          queue,
		HasReply:       reply != nil,
		HasDueDates:    due != nil,
	}
	s.publish(ctx, events.EventTicketTriaged, ticketID, events.TicketTriagedPayload{
		Category:   cls.Category,
		Priority:   cls.Priority,
		Confidence: cls.Confidence,
		RiskFlags:  cls.RiskFlags,
		Action:     action,
		Status:     status,
		Queue:      queue,
		HasReply:   reply != nil,
	})
	if action == domain.ActionEscalate {
		s.publish(ctx, events.EventTicketEscalated, ticketID, events.TicketEscalatedPayload{
			Queue:     domain.EscalationQueue,
			RiskFlags: cls.RiskFlags,
		})
	}

	assignment, err := s.assign(ctx, ticket, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist assignment")
		return nil, err
	}
	result.Assignment = assignment

	s.logger.Info("ticket triaged",
		zap.String("ticket_id", ticketID),
		zap.String("category", string(cls.Category)),
		zap.String("priority", string(cls.Priority)),
		zap.Float64("confidence", cls.Confidence),
		zap.String("action", string(action)),
		zap.String("status", string(status)),
		zap.Bool("assigned", assignment != nil))
	return result, nil
}

// ReportExhausted surfaces a ticket whose triage job ran out of attempts.
func (s *TriageService) ReportExhausted(ctx context.Context, ticketID string, attempt int, cause error) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	s.logger.Error("triage attempts exhausted",
		zap.String("ticket_id", ticketID),
		zap.Int("attempt", attempt),
		zap.String("reason", reason))
	s.publish(ctx, events.EventTriageFailed, ticketID, events.TriageFailedPayload{Attempt: attempt, Reason: reason})
}

func (s *TriageService) classify(ctx context.Context, ticket *domain.Ticket) domain.ClassificationResult {
	ctx, span := observability.Tracer().Start(ctx, "triage.classify")
	defer span.End()
	return s.classifier.Classify(ctx, ticket.Subject, ticket.Body)
}

// draftReply returns nil when retrieval fails; a drafter problem yields the fallback text.
func (s *TriageService) draftReply(ctx context.Context, ticket *domain.Ticket) *string {
	ctx, span := observability.Tracer().Start(ctx, "triage.draft")
	defer span.End()

	if s.retriever == nil || s.drafter == nil {
		return nil
	}
	passages, err := s.retriever.Retrieve(ctx, ticket.Subject+"\n"+ticket.Body, s.topK)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("knowledge retrieval failed; skipping suggested reply",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Int("triage.passages", len(passages)))
	reply := s.drafter.Draft(ctx, ticket.Subject, ticket.Body, passages)
	return &reply
}

func (s *TriageService) dueDates(ctx context.Context, ticket *domain.Ticket, priority domain.Priority) *domain.DueDates {
	if s.sla == nil {
		return nil
	}
	due, err := s.sla.DueDatesFor(ctx, ticket.CreatedAt, priority)
	if err != nil {
		s.logger.Warn("sla computation failed; leaving deadlines unset",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	return &due
}

// assign routes the ticket. Routing failures leave it unassigned; a failed
// write is returned.
func (s *TriageService) assign(ctx context.Context, ticket *domain.Ticket, role domain.UserRole) (*Assignment, error) {
	if s.assigner == nil {
		return nil, nil
	}
	ctx, span := observability.Tracer().Start(ctx, "triage.assign",
		trace.WithAttributes(attribute.String("assign.role", string(role))))
	defer span.End()

	assignment, err := s.assigner.ChooseAssignee(ctx, ticket.Email, role)
	if err != nil {
		s.logger.Warn("assignment routing failed; leaving ticket unassigned",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, nil
	}
	if assignment == nil {
		return nil, nil
	}
	if err := s.tickets.UpdateAssignment(ctx, ticket.ID, &assignment.UserID, s.now()); err != nil {
		return nil, fmt.Errorf("persist assignment: %w", err)
	}
	s.publish(ctx, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{
		AssigneeUserID: assignment.UserID,
		Role:           assignment.Role,
		Sticky:         assignment.Sticky,
	})
	return assignment, nil
}

func (s *TriageService) publish(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{Type: events.ActorTriageWorker},
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
