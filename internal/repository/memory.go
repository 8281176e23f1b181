package repository

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// MemoryStore is an in-process backing for every store interface. It applies
// the same conditional write rules as the Postgres statements and is used by
// tests and local runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	users    map[string]domain.User
	history  []domain.TicketHistory
	policy   *domain.SLAPolicy
	fallback domain.SLAPolicy
	passages []domain.Passage
}

// NewMemoryStore creates an empty store serving fallback until a policy is set.
func NewMemoryStore(fallback domain.SLAPolicy) *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*domain.Ticket),
		users:    make(map[string]domain.User),
		fallback: fallback,
	}
}

// PutTicket inserts or replaces a ticket.
func (s *MemoryStore) PutTicket(ticket domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusUntriaged
	}
	t := cloneTicket(ticket)
	s.tickets[ticket.ID] = &t
}

// Ticket returns a copy of the stored ticket.
func (s *MemoryStore) Ticket(id string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, false
	}
	return cloneTicket(*t), true
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutPassages replaces the knowledge base served by SearchByEmbedding.
func (s *MemoryStore) PutPassages(passages []domain.Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages = slices.Clone(passages)
}

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// SLAPolicies exposes the store as an SLAPolicyRepository.
func (s *MemoryStore) SLAPolicies() SLAPolicyRepository { return memoryPolicies{s} }

// History exposes the store as a TicketHistoryRepository.
func (s *MemoryStore) History() TicketHistoryRepository { return memoryHistory{s} }

// Knowledge exposes the store as a KnowledgeRepository.
func (s *MemoryStore) Knowledge() KnowledgeRepository { return memoryKnowledge{s} }

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	t, ok := m.s.Ticket(id)
	if !ok {
		return nil, ErrTicketNotFound
	}
	return &t, nil
}

func (m memoryTickets) UpdateTriage(_ context.Context, id string, update domain.TriageUpdate) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	t.ApplyTriage(update)
	return nil
}

func (m memoryTickets) UpdateAssignment(_ context.Context, id string, userID *string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	t.AssignedTo = cloneString(userID)
	t.UpdatedAt = at
	return nil
}

func (m memoryTickets) TransitionBreaches(_ context.Context, now time.Time) (domain.BreachCounts, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var counts domain.BreachCounts
	for _, t := range m.s.tickets {
		if t.FirstResponseBreached(now) {
			t.Status = domain.TicketStatusBreachedFirstResponse
			t.UpdatedAt = now
			counts.FirstResponse++
		}
	}
	for _, t := range m.s.tickets {
		if t.ResolutionBreached(now) {
			t.Status = domain.TicketStatusBreachedResolution
			t.UpdatedAt = now
			counts.Resolution++
		}
	}
	return counts, nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m memoryUsers) ListCandidatesByRole(_ context.Context, role domain.UserRole) ([]domain.AssignmentCandidate, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var result []domain.AssignmentCandidate
	for _, u := range m.s.users {
		if u.Role != role {
			continue
		}
		c := domain.AssignmentCandidate{UserID: u.ID, LoadByPriority: map[domain.Priority]int{}}
		for _, t := range m.s.tickets {
			if t.AssignedTo == nil || *t.AssignedTo != u.ID {
				continue
			}
			if t.Status != domain.TicketStatusActive || t.ResolvedAt != nil || t.Priority == nil {
				continue
			}
			c.LoadByPriority[*t.Priority]++
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (m memoryUsers) MostRecentAssigneeForCustomer(_ context.Context, email string, role domain.UserRole) (*string, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var best *domain.Ticket
	for _, t := range m.s.tickets {
		if t.Email == nil || !strings.EqualFold(*t.Email, email) || t.AssignedTo == nil {
			continue
		}
		u, ok := m.s.users[*t.AssignedTo]
		if !ok || u.Role != role {
			continue
		}
		if best == nil || t.CreatedAt.After(best.CreatedAt) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneString(best.AssignedTo), nil
}

type memoryPolicies struct{ s *MemoryStore }

func (m memoryPolicies) Get(context.Context) (domain.SLAPolicy, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if m.s.policy == nil {
		return m.s.fallback, nil
	}
	policy, _ := validOrFallback(*m.s.policy, m.s.fallback)
	return policy, nil
}

func (m memoryPolicies) Set(_ context.Context, policy domain.SLAPolicy) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.policy = &policy
	return nil
}

type memoryHistory struct{ s *MemoryStore }

func (m memoryHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	history.ID = strconv.Itoa(len(m.s.history) + 1)
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	m.s.history = append(m.s.history, *history)
	return nil
}

func (m memoryHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.TicketHistory
	for _, h := range m.s.history {
		if h.TicketID == ticketID {
			result = append(result, h)
		}
	}
	return result, nil
}

type memoryKnowledge struct{ s *MemoryStore }

func (m memoryKnowledge) SearchByEmbedding(_ context.Context, embedding []float32, topK int) ([]domain.Passage, error) {
	if err := ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	result := slices.Clone(m.s.passages)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	if topK > 0 && len(result) > topK {
		result = result[:topK]
	}
	return result, nil
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	out.RiskFlags = slices.Clone(t.RiskFlags)
	out.Email = cloneString(t.Email)
	out.AssignedTo = cloneString(t.AssignedTo)
	out.Queue = cloneString(t.Queue)
	out.SuggestedReply = cloneString(t.SuggestedReply)
	out.FirstResponseText = cloneString(t.FirstResponseText)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
