package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

var now = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func priorityPtr(p domain.Priority) *domain.Priority { return &p }

func TestMemoryTransitionBreachesIsIdempotent(t *testing.T) {
	store := NewMemoryStore(domain.DefaultSLAPolicy())
	store.PutTicket(domain.Ticket{
		ID:               "late",
		Status:           domain.TicketStatusActive,
		FirstResponseDue: timePtr(now.Add(-time.Minute)),
		ResolutionDue:    timePtr(now.Add(time.Hour)),
	})
	store.PutTicket(domain.Ticket{
		ID:               "on-time",
		Status:           domain.TicketStatusActive,
		FirstResponseDue: timePtr(now.Add(time.Minute)),
	})
	repo := store.Tickets()

	counts, err := repo.TransitionBreaches(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if counts.FirstResponse != 1 || counts.Resolution != 0 {
		t.Fatalf("counts = %+v", counts)
	}
	counts, _ = repo.TransitionBreaches(context.Background(), now)
	if counts.FirstResponse != 0 || counts.Resolution != 0 {
		t.Fatalf("second sweep moved rows: %+v", counts)
	}
	late, _ := store.Ticket("late")
	if late.Status != domain.TicketStatusBreachedFirstResponse {
		t.Fatalf("status = %s", late.Status)
	}
}

func TestMemoryFirstResponseBreachThenResolutionBreach(t *testing.T) {
	store := NewMemoryStore(domain.DefaultSLAPolicy())
	store.PutTicket(domain.Ticket{
		ID:               "both",
		Status:           domain.TicketStatusActive,
		FirstResponseDue: timePtr(now.Add(-2 * time.Hour)),
		ResolutionDue:    timePtr(now.Add(-time.Hour)),
	})
	counts, err := store.Tickets().TransitionBreaches(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if counts.FirstResponse != 1 || counts.Resolution != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	got, _ := store.Ticket("both")
	if got.Status != domain.TicketStatusBreachedResolution {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestMemoryCandidatesAndSticky(t *testing.T) {
	store := NewMemoryStore(domain.DefaultSLAPolicy())
	store.PutUser(domain.User{ID: "a1", Role: domain.UserRoleAgent})
	store.PutUser(domain.User{ID: "a2", Role: domain.UserRoleAgent})
	store.PutUser(domain.User{ID: "boss", Role: domain.UserRoleAdmin})
	store.PutTicket(domain.Ticket{
		ID: "t1", Email: strPtr("Jane@Example.com"), AssignedTo: strPtr("a1"),
		Status: domain.TicketStatusActive, Priority: priorityPtr(domain.PriorityHigh), CreatedAt: now.Add(-2 * time.Hour),
	})
	store.PutTicket(domain.Ticket{
		ID: "t2", Email: strPtr("jane@example.com"), AssignedTo: strPtr("a2"),
		Status: domain.TicketStatusResolved, Priority: priorityPtr(domain.PriorityLow), CreatedAt: now.Add(-time.Hour),
	})
	store.PutTicket(domain.Ticket{
		ID: "t3", Email: strPtr("jane@example.com"), AssignedTo: strPtr("boss"),
		Status: domain.TicketStatusActive, Priority: priorityPtr(domain.PriorityLow), CreatedAt: now,
	})
	users := store.Users()

	candidates, err := users.ListCandidatesByRole(context.Background(), domain.UserRoleAgent)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 || candidates[0].UserID != "a1" || candidates[0].WeightedLoad() != 3 || candidates[1].OpenCount() != 0 {
		t.Fatalf("candidates = %+v", candidates)
	}

	sticky, err := users.MostRecentAssigneeForCustomer(context.Background(), "JANE@example.com", domain.UserRoleAgent)
	if err != nil || sticky == nil || *sticky != "a2" {
		t.Fatalf("sticky = %v, %v", sticky, err)
	}
	none, _ := users.MostRecentAssigneeForCustomer(context.Background(), "other@example.com", domain.UserRoleAgent)
	if none != nil {
		t.Fatalf("expected no sticky match, got %v", *none)
	}
}

func TestMemoryPolicyStore(t *testing.T) {
	store := NewMemoryStore(domain.DefaultSLAPolicy())
	policies := store.SLAPolicies()
	got, _ := policies.Get(context.Background())
	if got != domain.DefaultSLAPolicy() {
		t.Fatalf("expected fallback, got %+v", got)
	}
	updated := domain.DefaultSLAPolicy()
	updated.High.FirstResponseMinutes = 15
	if err := policies.Set(context.Background(), updated); err != nil {
		t.Fatal(err)
	}
	got, _ = policies.Get(context.Background())
	if got.High.FirstResponseMinutes != 15 {
		t.Fatalf("policy not stored: %+v", got)
	}
}

func TestStoredPolicyFallsBackWhenInvalid(t *testing.T) {
	custom := domain.DefaultSLAPolicy()
	custom.Low.ResolutionHours = 200
	partial := domain.DefaultSLAPolicy()
	partial.Medium = domain.SLATier{FirstResponseMinutes: 240}

	cases := []struct {
		name    string
		stored  domain.SLAPolicy
		want    domain.SLAPolicy
		invalid bool
	}{
		{name: "valid", stored: custom, want: custom},
		{name: "partial tier", stored: partial, want: domain.DefaultSLAPolicy(), invalid: true},
		{name: "empty", stored: domain.SLAPolicy{}, want: domain.DefaultSLAPolicy(), invalid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore(domain.DefaultSLAPolicy())
			if err := store.SLAPolicies().Set(context.Background(), tc.stored); err != nil {
				t.Fatal(err)
			}
			got, err := store.SLAPolicies().Get(context.Background())
			if err != nil || got != tc.want {
				t.Fatalf("Get = %+v, %v; want %+v", got, err, tc.want)
			}
			if _, problems := validOrFallback(tc.stored, domain.DefaultSLAPolicy()); (problems != nil) != tc.invalid {
				t.Fatalf("problems = %v", problems)
			}
		})
	}
}

func TestMemoryMissingTicket(t *testing.T) {
	store := NewMemoryStore(domain.DefaultSLAPolicy())
	_, err := store.Tickets().GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := store.Tickets().UpdateAssignment(context.Background(), "nope", nil, now); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateEmbedding(t *testing.T) {
	good := make([]float32, EmbeddingDimensions)
	if err := ValidateEmbedding(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateEmbedding(good[:10]); err == nil {
		t.Fatal("expected length error")
	}
	bad := make([]float32, EmbeddingDimensions)
	var zero float32
	bad[7] = zero / zero
	if err := ValidateEmbedding(bad); err == nil {
		t.Fatal("expected non-finite error")
	}
}
