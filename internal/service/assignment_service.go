package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/repository"
)

// Assignment is the routing outcome for one ticket.
type Assignment struct {
	UserID string
	Role   domain.UserRole
	Sticky bool
}

// AssignmentService picks a human owner for triaged tickets.
type AssignmentService struct {
	users  repository.UserRepository
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
	// Rand breaks load ties. Nil uses the global source.
	Rand *rand.Rand
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		users:  deps.UserRepo,
		logger: deps.Logger,
		rng:    deps.Rand,
	}
}

// ChooseAssignee tries sticky routing by customer email and then falls back
// to the least loaded user with role. A nil result with nil error means no
// candidate exists.
func (s *AssignmentService) ChooseAssignee(ctx context.Context, email *string, role domain.UserRole) (*Assignment, error) {
	if email != nil && strings.TrimSpace(*email) != "" {
		userID, err := s.users.MostRecentAssigneeForCustomer(ctx, strings.TrimSpace(*email), role)
		if err != nil {
			return nil, fmt.Errorf("sticky lookup: %w", err)
		}
		if userID != nil {
			return &Assignment{UserID: *userID, Role: role, Sticky: true}, nil
		}
	}

	candidates, err := s.users.ListCandidatesByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	best := s.leastLoaded(candidates)
	if best == nil {
		s.logger.Debug("no assignment candidates", zap.String("role", string(role)))
		return nil, nil
	}
	return &Assignment{UserID: best.UserID, Role: role}, nil
}

// leastLoaded shuffles and then stable-sorts, so equal keys keep a random order.
func (s *AssignmentService) leastLoaded(candidates []domain.AssignmentCandidate) *domain.AssignmentCandidate {
	if len(candidates) == 0 {
		return nil
	}
	ranked := make([]domain.AssignmentCandidate, len(candidates))
	copy(ranked, candidates)

	swap := func(i, j int) { ranked[i], ranked[j] = ranked[j], ranked[i] }
	if s.rng != nil {
		s.mu.Lock()
		s.rng.Shuffle(len(ranked), swap)
		s.mu.Unlock()
	} else {
		rand.Shuffle(len(ranked), swap)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := ranked[i].WeightedLoad(), ranked[j].WeightedLoad()
		if wi != wj {
			return wi < wj
		}
		return ranked[i].OpenCount() < ranked[j].OpenCount()
	})
	return &ranked[0]
}
