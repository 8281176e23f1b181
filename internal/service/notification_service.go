package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/repository"
)

// NotificationService turns engine events into the operator trail: a log
// line per event and a ticket_history row for ticket-scoped changes.
type NotificationService struct {
	dispatcher events.Dispatcher
	history    repository.TicketHistoryRepository
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, history repository.TicketHistoryRepository, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketTriaged, n.handleTicketTriaged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
	n.dispatcher.Subscribe(events.EventTriageFailed, n.handleTriageFailed)
}

func (n *NotificationService) handleTicketTriaged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketTriaged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.TicketTriagedPayload)
	if !ok {
		return nil
	}
	return n.record(ctx, event, domain.ChangeTypeTriaged, map[string]any{
		"category":   payload.Category,
		"priority":   payload.Priority,
		"confidence": payload.Confidence,
		"risk_flags": payload.RiskFlags,
		"action":     payload.Action,
		"status":     payload.Status,
		"queue":      payload.Queue,
	})
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	return n.record(ctx, event, domain.ChangeTypeAssignee, map[string]any{
		"assigned_to": payload.AssigneeUserID,
		"role":        payload.Role,
		"sticky":      payload.Sticky,
	})
}

func (n *NotificationService) handleTicketEscalated(_ context.Context, event events.Event) error {
	n.logger.Warn("TicketEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleSLABreached(_ context.Context, event events.Event) error {
	n.logger.Warn("SLABreached", zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTriageFailed(ctx context.Context, event events.Event) error {
	n.logger.Error("TriageFailed", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.TriageFailedPayload)
	if !ok {
		return nil
	}
	return n.record(ctx, event, domain.ChangeTypeTriageFailed, map[string]any{
		"attempt": payload.Attempt,
		"reason":  payload.Reason,
	})
}

func (n *NotificationService) record(ctx context.Context, event events.Event, change domain.TicketChangeType, value map[string]any) error {
	if n.history == nil || event.TicketID == "" {
		return nil
	}
	return n.history.Create(ctx, &domain.TicketHistory{
		TicketID:   event.TicketID,
		ChangeType: change,
		NewValue:   value,
		CreatedAt:  event.Timestamp,
	})
}
