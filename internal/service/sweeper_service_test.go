package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/repository"
)

func TestSweepOnce(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	store := repository.NewMemoryStore(domain.DefaultSLAPolicy())
	store.PutTicket(domain.Ticket{ID: "late-first", Status: domain.TicketStatusActive, FirstResponseDue: &past, ResolutionDue: &future})
	store.PutTicket(domain.Ticket{ID: "answered", Status: domain.TicketStatusActive, FirstResponseDue: &past, FirstResponseSentAt: &past, ResolutionDue: &future})
	store.PutTicket(domain.Ticket{ID: "late-resolution", Status: domain.TicketStatusEscalated, ResolutionDue: &past})
	store.PutTicket(domain.Ticket{ID: "resolved", Status: domain.TicketStatusResolved, FirstResponseDue: &past, ResolutionDue: &past, ResolvedAt: &past})

	dispatcher := events.NewInMemoryDispatcher()
	var published []events.SLABreachedPayload
	dispatcher.Subscribe(events.EventSLABreached, func(_ context.Context, e events.Event) error {
		published = append(published, e.Payload.(events.SLABreachedPayload))
		return nil
	})
	metrics := observability.NewMetrics()
	svc := NewSweeperService(SweeperDependencies{
		TicketRepo: store.Tickets(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return now },
	})

	counts, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if counts.FirstResponse != 1 || counts.Resolution != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	want := map[string]domain.TicketStatus{
		"late-first":      domain.TicketStatusBreachedFirstResponse,
		"answered":        domain.TicketStatusActive,
		"late-resolution": domain.TicketStatusBreachedResolution,
		"resolved":        domain.TicketStatusResolved,
	}
	for id, status := range want {
		got, _ := store.Ticket(id)
		if got.Status != status {
			t.Fatalf("%s status = %s, want %s", id, got.Status, status)
		}
	}

	again, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("second SweepOnce: %v", err)
	}
	if again.FirstResponse != 0 || again.Resolution != 0 {
		t.Fatalf("second pass moved rows: %+v", again)
	}
	for id, status := range want {
		got, _ := store.Ticket(id)
		if got.Status != status {
			t.Fatalf("%s flapped to %s", id, got.Status)
		}
	}

	if len(published) != 1 {
		t.Fatalf("expected one breach event, got %d", len(published))
	}
	snap := metrics.Snapshot()
	if snap.Sweeps != 2 {
		t.Fatalf("sweeps = %d", snap.Sweeps)
	}
}
