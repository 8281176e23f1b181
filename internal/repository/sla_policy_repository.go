package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
)

const slaSettingKey = "sla"

// SLAPolicyRepository stores the globally mutable SLA policy. No history is kept.
type SLAPolicyRepository interface {
	Get(ctx context.Context) (domain.SLAPolicy, error)
	Set(ctx context.Context, policy domain.SLAPolicy) error
}

type slaPolicyRepository struct {
	pool     *pgxpool.Pool
	fallback domain.SLAPolicy
	logger   *zap.Logger
}

// NewSLAPolicyRepository returns a store backed by app_settings. fallback is
// served until an operator saves a valid policy.
func NewSLAPolicyRepository(pool *pgxpool.Pool, fallback domain.SLAPolicy, logger *zap.Logger) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool, fallback: fallback, logger: logger}
}

func (r *slaPolicyRepository) Get(ctx context.Context) (domain.SLAPolicy, error) {
	const query = `SELECT value FROM app_settings WHERE key=$1`

	var raw []byte
	if err := r.pool.QueryRow(ctx, query, slaSettingKey).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.fallback, nil
		}
		return domain.SLAPolicy{}, err
	}
	var policy domain.SLAPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return domain.SLAPolicy{}, fmt.Errorf("decode sla policy: %w", err)
	}
	policy, problems := validOrFallback(policy, r.fallback)
	if problems != nil {
		r.logger.Warn("stored sla policy is invalid; serving fallback", zap.Any("problems", problems))
	}
	return policy, nil
}

// validOrFallback returns stored unless a tier is missing or non-positive, in
// which case every due date would collapse onto created_at.
func validOrFallback(stored, fallback domain.SLAPolicy) (domain.SLAPolicy, map[string]any) {
	if problems := stored.Validate(); problems != nil {
		return fallback, problems
	}
	return stored, nil
}

func (r *slaPolicyRepository) Set(ctx context.Context, policy domain.SLAPolicy) error {
	const query = `
        INSERT INTO app_settings (key, value, updated_at)
        VALUES ($1, $2::jsonb, now())
        ON CONFLICT (key)
        DO UPDATE SET value=EXCLUDED.value, updated_at=now()`

	raw, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode sla policy: %w", err)
	}
	_, err = r.pool.Exec(ctx, query, slaSettingKey, string(raw))
	return err
}
