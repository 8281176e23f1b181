package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// ErrTicketNotFound is returned when a ticket id does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketRepository encapsulates the ticket writes made by the triage engine.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateTriage(ctx context.Context, id string, update domain.TriageUpdate) error
	UpdateAssignment(ctx context.Context, id string, userID *string, at time.Time) error
	TransitionBreaches(ctx context.Context, now time.Time) (domain.BreachCounts, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, source, email, subject, body, predicted_category, priority, confidence, risk_flags,
       suggested_reply, action, status, assigned_to, queue,
       first_response_due, resolution_due, escalation_due,
       first_response_sent_at, first_response_text, resolved_at, escalated_at,
       created_at, updated_at`

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`

	var (
		ticket    domain.Ticket
		riskFlags []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Source,
		&ticket.Email,
		&ticket.Subject,
		&ticket.Body,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Confidence,
		&riskFlags,
		&ticket.SuggestedReply,
		&ticket.Action,
		&ticket.Status,
		&ticket.AssignedTo,
		&ticket.Queue,
		&ticket.FirstResponseDue,
		&ticket.ResolutionDue,
		&ticket.EscalationDue,
		&ticket.FirstResponseSentAt,
		&ticket.FirstResponseText,
		&ticket.ResolvedAt,
		&ticket.EscalatedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	if len(riskFlags) > 0 {
		if err := json.Unmarshal(riskFlags, &ticket.RiskFlags); err != nil {
			return nil, fmt.Errorf("decode risk_flags: %w", err)
		}
	}
	return &ticket, nil
}

// UpdateTriage writes classification, reply, SLA and action in one statement.
// SLA dates, escalated_at and resolved_at keep their first value; a resolved
// ticket stays resolved and a breach is only left by resolving.
func (r *ticketRepository) UpdateTriage(ctx context.Context, id string, update domain.TriageUpdate) error {
	const query = `
        UPDATE tickets SET
            predicted_category=$2,
            priority=$3,
            confidence=$4,
            risk_flags=$5::jsonb,
            suggested_reply=$6,
            action=$7,
            queue=$8,
            first_response_due=COALESCE(first_response_due, $9),
            resolution_due=COALESCE(resolution_due, $10),
            escalation_due=COALESCE(escalation_due, $11),
            escalated_at=CASE WHEN $7::text='ESCALATE' THEN COALESCE(escalated_at, $12) ELSE escalated_at END,
            resolved_at=CASE WHEN resolved_at IS NULL AND $13::text='resolved' THEN $12 ELSE resolved_at END,
            status=CASE
                WHEN resolved_at IS NOT NULL OR $13::text='resolved' THEN 'resolved'
                WHEN status IN ('breached_first_response','breached_resolution') THEN status
                ELSE $13::text
            END,
            updated_at=$12
        WHERE id=$1`

	flags := update.Classification.RiskFlags
	if flags == nil {
		flags = []string{}
	}
	riskFlags, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode risk_flags: %w", err)
	}

	var firstDue, resolutionDue, escalationDue *time.Time
	if update.DueDates != nil {
		firstDue = &update.DueDates.FirstResponseDue
		resolutionDue = &update.DueDates.ResolutionDue
		escalationDue = &update.DueDates.EscalationDue
	}

	cmd, err := r.pool.Exec(ctx, query,
		id,
		string(update.Classification.Category),
		string(update.Classification.Priority),
		update.Classification.Confidence,
		string(riskFlags),
		update.SuggestedReply,
		string(update.Action),
		update.Queue,
		firstDue,
		resolutionDue,
		escalationDue,
		update.At,
		string(update.Status),
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (r *ticketRepository) UpdateAssignment(ctx context.Context, id string, userID *string, at time.Time) error {
	const query = `UPDATE tickets SET assigned_to=$2, updated_at=$3 WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// TransitionBreaches runs the two one-way bulk moves. Each is a single
// conditional UPDATE so concurrent sweeps cannot observe partial state.
func (r *ticketRepository) TransitionBreaches(ctx context.Context, now time.Time) (domain.BreachCounts, error) {
	const firstResponse = `
        UPDATE tickets
           SET status='breached_first_response', updated_at=$1
         WHERE status IN ('untriaged','active')
           AND first_response_due IS NOT NULL
           AND first_response_sent_at IS NULL
           AND first_response_due < $1`
	const resolution = `
        UPDATE tickets
           SET status='breached_resolution', updated_at=$1
         WHERE status IN ('active','escalated','breached_first_response')
           AND resolution_due IS NOT NULL
           AND resolved_at IS NULL
           AND resolution_due < $1`

	var counts domain.BreachCounts
	cmd, err := r.pool.Exec(ctx, firstResponse, now)
	if err != nil {
		return counts, fmt.Errorf("first response breaches: %w", err)
	}
	counts.FirstResponse = cmd.RowsAffected()

	cmd, err = r.pool.Exec(ctx, resolution, now)
	if err != nil {
		return counts, fmt.Errorf("resolution breaches: %w", err)
	}
	counts.Resolution = cmd.RowsAffected()
	return counts, nil
}
