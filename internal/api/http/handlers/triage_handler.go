package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-engine/internal/api/dto"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/queue"
	"github.com/spec-kit/triage-engine/internal/service"
)

// QueueStats reports job queue depths.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// TriageHandler exposes the engine's two entry points and its counters.
type TriageHandler struct {
	triage  *service.TriageService
	sweeper *service.SweeperService
	metrics *observability.Metrics
	queue   QueueStats
}

// NewTriageHandler constructs handler. stats may be nil.
func NewTriageHandler(triage *service.TriageService, sweeper *service.SweeperService, metrics *observability.Metrics, stats QueueStats) *TriageHandler {
	return &TriageHandler{triage: triage, sweeper: sweeper, metrics: metrics, queue: stats}
}

// Enqueue POST /internal/tickets/:id/triage.
func (h *TriageHandler) Enqueue(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	enqueued, err := h.triage.Enqueue(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.EnqueueTriageResponse{
		TicketID: ticketID,
		Enqueued: enqueued,
	}})
}

// Sweep POST /internal/sla/sweep.
func (h *TriageHandler) Sweep(c *fiber.Ctx) error {
	counts, err := h.sweeper.SweepOnce(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		FirstResponseBreached: counts.FirstResponse,
		ResolutionBreached:    counts.Resolution,
	}})
}

// Metrics GET /metrics.
func (h *TriageHandler) Metrics(c *fiber.Ctx) error {
	body := fiber.Map{"counters": h.metrics.Snapshot()}
	if h.queue != nil {
		if stats, err := h.queue.Stats(c.UserContext()); err == nil {
			body["queue"] = stats
		} else {
			body["queue_error"] = err.Error()
		}
	}
	return c.JSON(body)
}
