package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/repository"
	apperrors "github.com/spec-kit/triage-engine/pkg/util/errorutil"
)

const testTicketID = "7b0f5a52-2d7e-4c1e-9a55-0c7a0f4e8b11"

type triageFixture struct {
	store   *repository.MemoryStore
	clock   *fixedClock
	svc     *TriageService
	history repository.TicketHistoryRepository
}

type fixtureOptions struct {
	wrap      func(repository.TicketRepository) repository.TicketRepository
	model     ModelOpinion
	generator *stubGenerator
	embedErr  error
	queue     JobQueue
}

func newTriageFixture(t *testing.T, opts fixtureOptions) *triageFixture {
	t.Helper()
	store := repository.NewMemoryStore(domain.DefaultSLAPolicy())
	clock := &fixedClock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()

	store.PutUser(domain.User{ID: "agent-1", Role: domain.UserRoleAgent})
	store.PutUser(domain.User{ID: "admin-1", Role: domain.UserRoleAdmin})
	store.PutPassages([]domain.Passage{{SourceID: "security-policy", Text: "Reset your password and enable MFA.", Score: 0.9}})

	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, store.History(), logger).RegisterHandlers()

	tickets := store.Tickets()
	if opts.wrap != nil {
		tickets = opts.wrap(tickets)
	}
	generator := opts.generator
	if generator == nil {
		generator = &stubGenerator{}
	}

	svc := NewTriageService(TriageDependencies{
		TicketRepo: tickets,
		Classifier: NewClassifier(opts.model, 0, logger),
		Retriever:  NewRetrievalService(stubEmbedder{err: opts.embedErr}, store.Knowledge()),
		Drafter:    NewReplyDrafter(generator, 0, logger),
		SLA:        NewSLAService(store.SLAPolicies(), logger),
		Assigner: NewAssignmentService(AssignmentDependencies{
			UserRepo: store.Users(),
			Logger:   logger,
			Rand:     rand.New(rand.NewPCG(1, 1)),
		}),
		Queue:      opts.queue,
		Dispatcher: dispatcher,
		Logger:     logger,
		Now:        clock.Now,
	})
	return &triageFixture{store: store, clock: clock, svc: svc, history: store.History()}
}

func (f *triageFixture) putTicket(subject, body string) domain.Ticket {
	ticket := domain.Ticket{
		ID:        testTicketID,
		Email:     ptr("customer@example.com"),
		Subject:   subject,
		Body:      body,
		Status:    domain.TicketStatusUntriaged,
		CreatedAt: f.clock.Now().Add(-10 * time.Minute),
	}
	f.store.PutTicket(ticket)
	return ticket
}

func TestTriageEscalatesHackedAccount(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{})
	created := f.putTicket("URGENT: account hacked", "Someone changed my email address.")

	result, err := f.svc.Run(context.Background(), testTicketID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Action != domain.ActionEscalate || result.Classification.Category != domain.CategorySecurity {
		t.Fatalf("unexpected result %+v", result)
	}

	got, _ := f.store.Ticket(testTicketID)
	if got.Status != domain.TicketStatusActive || got.Queue == nil || *got.Queue != domain.EscalationQueue {
		t.Fatalf("status/queue = %s/%v", got.Status, got.Queue)
	}
	if got.Priority == nil || *got.Priority != domain.PriorityHigh || got.Confidence == nil || *got.Confidence != 0.92 {
		t.Fatalf("classification not persisted: %+v", got)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "admin-1" {
		t.Fatalf("assigned_to = %v, want admin-1", got.AssignedTo)
	}
	if got.SuggestedReply == nil || *got.SuggestedReply != FallbackReply {
		t.Fatalf("suggested reply = %v", got.SuggestedReply)
	}
	if got.EscalatedAt == nil || !got.EscalatedAt.Equal(f.clock.Now()) {
		t.Fatalf("escalated_at = %v", got.EscalatedAt)
	}
	if got.FirstResponseDue == nil || !got.FirstResponseDue.Equal(created.CreatedAt.Add(time.Hour)) {
		t.Fatalf("first_response_due = %v", got.FirstResponseDue)
	}

	trail, _ := f.history.ListByTicket(context.Background(), testTicketID)
	if len(trail) != 2 || trail[0].ChangeType != domain.ChangeTypeTriaged || trail[1].ChangeType != domain.ChangeTypeAssignee {
		t.Fatalf("unexpected history %+v", trail)
	}
}

func TestTriageAutoResolvesConfidentLowPriority(t *testing.T) {
	model := &domain.ClassificationResult{Category: domain.CategoryProduct, Priority: domain.PriorityLow, Confidence: 0.75}
	gen := &stubGenerator{configured: true, text: "Dark mode is on our roadmap."}
	f := newTriageFixture(t, fixtureOptions{model: stubOpinion{result: model}, generator: gen})
	f.putTicket("Feature idea", "Please add dark mode")

	if _, err := f.svc.Run(context.Background(), testTicketID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := f.store.Ticket(testTicketID)
	if got.Status != domain.TicketStatusResolved || got.ResolvedAt == nil {
		t.Fatalf("status = %s resolved_at = %v", got.Status, got.ResolvedAt)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "agent-1" {
		t.Fatalf("assigned_to = %v", got.AssignedTo)
	}
	if got.SuggestedReply == nil || *got.SuggestedReply != "Dark mode is on our roadmap." {
		t.Fatalf("suggested reply = %v", got.SuggestedReply)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("generator called %d times", len(gen.prompts))
	}
}

func TestTriageRerunKeepsMonotonicFields(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{})
	f.putTicket("URGENT: account hacked", "")

	if _, err := f.svc.Run(context.Background(), testTicketID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := f.store.Ticket(testTicketID)

	f.clock.Advance(30 * time.Minute)
	if err := f.store.SLAPolicies().Set(context.Background(), domain.SLAPolicy{
		High:   domain.SLATier{FirstResponseMinutes: 5, ResolutionHours: 1, EscalationHours: 1},
		Medium: domain.SLATier{FirstResponseMinutes: 5, ResolutionHours: 1, EscalationHours: 1},
		Low:    domain.SLATier{FirstResponseMinutes: 5, ResolutionHours: 1, EscalationHours: 1},
	}); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if _, err := f.svc.Run(context.Background(), testTicketID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := f.store.Ticket(testTicketID)

	if !second.FirstResponseDue.Equal(*first.FirstResponseDue) || !second.ResolutionDue.Equal(*first.ResolutionDue) {
		t.Fatal("due dates changed on re-triage")
	}
	if !second.EscalatedAt.Equal(*first.EscalatedAt) {
		t.Fatal("escalated_at changed on re-triage")
	}
}

func TestTriageRerunKeepsFirstResponseSent(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{})
	sentAt := f.clock.Now().Add(-5 * time.Minute)
	f.store.PutTicket(domain.Ticket{
		ID:                  testTicketID,
		Email:               ptr("customer@example.com"),
		Subject:             "Invoice question",
		Body:                "Why was I billed twice?",
		Status:              domain.TicketStatusActive,
		FirstResponseSentAt: &sentAt,
		FirstResponseText:   ptr("We are looking into the duplicate charge."),
		CreatedAt:           f.clock.Now().Add(-10 * time.Minute),
	})

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Run(context.Background(), testTicketID); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		f.clock.Advance(time.Minute)
	}

	got, _ := f.store.Ticket(testTicketID)
	if got.FirstResponseSentAt == nil || !got.FirstResponseSentAt.Equal(sentAt) {
		t.Fatalf("first_response_sent_at = %v, want %v", got.FirstResponseSentAt, sentAt)
	}
	if got.FirstResponseText == nil || *got.FirstResponseText != "We are looking into the duplicate charge." {
		t.Fatalf("first_response_text = %v", got.FirstResponseText)
	}
	if got.SuggestedReply == nil || *got.SuggestedReply != FallbackReply {
		t.Fatalf("suggested reply = %v", got.SuggestedReply)
	}
}

func TestTriageRunIsIdempotent(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{})
	f.store.PutUser(domain.User{ID: "agent-2", Role: domain.UserRoleAgent})
	f.store.PutTicket(domain.Ticket{
		ID:         "2c1d3f4e-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
		Email:      ptr("Customer@Example.com"),
		Subject:    "Earlier question",
		Status:     domain.TicketStatusResolved,
		AssignedTo: ptr("agent-2"),
		CreatedAt:  f.clock.Now().Add(-48 * time.Hour),
	})
	f.putTicket("Invoice question", "Why was I billed twice?")

	var runs []domain.Ticket
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Run(context.Background(), testTicketID); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		got, _ := f.store.Ticket(testTicketID)
		runs = append(runs, got)
		f.clock.Advance(5 * time.Minute)
	}

	if runs[0].AssignedTo == nil || *runs[0].AssignedTo != "agent-2" {
		t.Fatalf("assigned_to = %v, want sticky agent-2", runs[0].AssignedTo)
	}
	first, second := runs[0], runs[1]
	first.UpdatedAt, second.UpdatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-triage changed the ticket:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestTriageRetrievalFailureLeavesReplyEmpty(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{embedErr: errors.New("ingest down")})
	f.putTicket("Invoice question", "Why was I billed twice?")

	result, err := f.svc.Run(context.Background(), testTicketID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.HasReply {
		t.Fatal("expected no reply")
	}
	got, _ := f.store.Ticket(testTicketID)
	if got.SuggestedReply != nil {
		t.Fatalf("suggested reply = %q", *got.SuggestedReply)
	}
	if got.Status != domain.TicketStatusActive || got.Action == nil || *got.Action != domain.ActionAutoAckOnly {
		t.Fatalf("status/action = %s/%v", got.Status, got.Action)
	}
}

func TestTriageMissingTicket(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{})
	_, err := f.svc.Run(context.Background(), testTicketID)
	if !errors.Is(err, repository.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

type failingTickets struct {
	repository.TicketRepository
	triageErr error
	assignErr error
}

func (f failingTickets) UpdateTriage(ctx context.Context, id string, u domain.TriageUpdate) error {
	if f.triageErr != nil {
		return f.triageErr
	}
	return f.TicketRepository.UpdateTriage(ctx, id, u)
}

func (f failingTickets) UpdateAssignment(ctx context.Context, id string, userID *string, at time.Time) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	return f.TicketRepository.UpdateAssignment(ctx, id, userID, at)
}

func TestTriagePersistenceFailuresAreReturned(t *testing.T) {
	storeErr := errors.New("connection reset")
	cases := []struct {
		name string
		wrap func(repository.TicketRepository) repository.TicketRepository
	}{
		{"triage write", func(r repository.TicketRepository) repository.TicketRepository {
			return failingTickets{TicketRepository: r, triageErr: storeErr}
		}},
		{"assignment write", func(r repository.TicketRepository) repository.TicketRepository {
			return failingTickets{TicketRepository: r, assignErr: storeErr}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTriageFixture(t, fixtureOptions{wrap: tc.wrap})
			f.putTicket("Password reset", "locked out")

			_, err := f.svc.Run(context.Background(), testTicketID)
			if !errors.Is(err, storeErr) {
				t.Fatalf("expected store error, got %v", err)
			}
		})
	}
}

type recordingQueue struct {
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, ticketID string) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	for _, id := range q.ids {
		if id == ticketID {
			return false, nil
		}
	}
	q.ids = append(q.ids, ticketID)
	return true, nil
}

func TestTriageEnqueue(t *testing.T) {
	q := &recordingQueue{}
	f := newTriageFixture(t, fixtureOptions{queue: q})
	ctx := context.Background()

	_, err := f.svc.Enqueue(ctx, "not-a-uuid")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.HTTPStatus != 400 {
		t.Fatalf("expected validation error, got %v", err)
	}

	ok, err := f.svc.Enqueue(ctx, testTicketID)
	if err != nil || !ok {
		t.Fatalf("first enqueue = %v, %v", ok, err)
	}
	ok, err = f.svc.Enqueue(ctx, testTicketID)
	if err != nil || ok {
		t.Fatalf("duplicate enqueue = %v, %v", ok, err)
	}

	q.err = errors.New("redis down")
	_, err = f.svc.Enqueue(ctx, testTicketID)
	if !errors.As(err, &domainErr) || domainErr.HTTPStatus != 503 {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestTriageReportExhaustedRecordsHistory(t *testing.T) {
	f := newTriageFixture(t, fixtureOptions{})
	f.svc.ReportExhausted(context.Background(), testTicketID, 5, errors.New("persist triage: timeout"))

	trail, _ := f.history.ListByTicket(context.Background(), testTicketID)
	if len(trail) != 1 || trail[0].ChangeType != domain.ChangeTypeTriageFailed {
		t.Fatalf("unexpected history %+v", trail)
	}
	if trail[0].NewValue["attempt"] != 5 {
		t.Fatalf("attempt = %v", trail[0].NewValue["attempt"])
	}
}
