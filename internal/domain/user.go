package domain

import "time"

// UserRole enumerates staff roles eligible for assignment.
type UserRole string

const (
	UserRoleAgent UserRole = "agent"
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleAgent || r == UserRoleAdmin
}

// User is a staff member from the user directory.
type User struct {
	ID        string
	Email     string
	Role      UserRole
	FullName  *string
	CreatedAt time.Time
}

// AssignmentCandidate is a user with their current active workload.
type AssignmentCandidate struct {
	UserID         string
	LoadByPriority map[Priority]int
}

// WeightedLoad sums active tickets weighted by priority.
func (c AssignmentCandidate) WeightedLoad() int {
	total := 0
	for p, n := range c.LoadByPriority {
		total += p.LoadWeight() * n
	}
	return total
}

// OpenCount is the raw number of active tickets.
func (c AssignmentCandidate) OpenCount() int {
	total := 0
	for _, n := range c.LoadByPriority {
		total += n
	}
	return total
}
