package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// ErrUserNotFound is returned when a user id does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserRepository is the user directory consulted for routing and auth.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListCandidatesByRole(ctx context.Context, role domain.UserRole) ([]domain.AssignmentCandidate, error)
	MostRecentAssigneeForCustomer(ctx context.Context, email string, role domain.UserRole) (*string, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id::text, email, role, full_name, created_at FROM users WHERE id::text=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.FullName,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListCandidatesByRole returns every user with the role and their active
// ticket counts grouped by priority. Users with no load appear with an empty map.
func (r *userRepository) ListCandidatesByRole(ctx context.Context, role domain.UserRole) ([]domain.AssignmentCandidate, error) {
	const query = `
        SELECT u.id::text, t.priority, COUNT(t.id)
          FROM users u
     LEFT JOIN tickets t
            ON t.assigned_to = u.id::text
           AND t.status = 'active'
           AND t.resolved_at IS NULL
         WHERE u.role = $1
      GROUP BY u.id, t.priority
      ORDER BY u.id`

	rows, err := r.pool.Query(ctx, query, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		result []domain.AssignmentCandidate
		index  = map[string]int{}
	)
	for rows.Next() {
		var (
			userID   string
			priority *string
			count    int
		)
		if err := rows.Scan(&userID, &priority, &count); err != nil {
			return nil, err
		}
		i, ok := index[userID]
		if !ok {
			i = len(result)
			index[userID] = i
			result = append(result, domain.AssignmentCandidate{UserID: userID, LoadByPriority: map[domain.Priority]int{}})
		}
		if priority != nil && count > 0 {
			result[i].LoadByPriority[domain.Priority(*priority)] += count
		}
	}
	return result, rows.Err()
}

func (r *userRepository) MostRecentAssigneeForCustomer(ctx context.Context, email string, role domain.UserRole) (*string, error) {
	const query = `
        SELECT t.assigned_to
          FROM tickets t
          JOIN users u ON u.id::text = t.assigned_to
         WHERE lower(t.email) = $1
           AND t.assigned_to IS NOT NULL
           AND u.role = $2
      ORDER BY t.created_at DESC
         LIMIT 1`

	var assignee string
	err := r.pool.QueryRow(ctx, query, strings.ToLower(email), string(role)).Scan(&assignee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &assignee, nil
}
