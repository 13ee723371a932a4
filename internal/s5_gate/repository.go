package s5_gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stagegate/internal/contracts"
)

// Repository implements contracts.GateRepository on stages.gate_daily
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new gate repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveGateDaily upserts the materialized gate table
func (r *Repository) SaveGateDaily(ctx context.Context, rows []contracts.GateDailyRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO stages.gate_daily
			(spider_id, trade_date, stage, stage_name, allowed, reason, risk_mult, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (spider_id, trade_date) DO UPDATE SET
			stage = EXCLUDED.stage,
			stage_name = EXCLUDED.stage_name,
			allowed = EXCLUDED.allowed,
			reason = EXCLUDED.reason,
			risk_mult = EXCLUDED.risk_mult,
			updated_at = NOW()`

	for _, row := range rows {
		batch.Queue(query, row.SpiderID, row.Date, int(row.Stage), row.StageName, row.Allowed, string(row.Reason), row.RiskMult)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert gate row: %w", err)
		}
	}
	return nil
}

// GetGateDaily retrieves one materialized row; nil when absent
func (r *Repository) GetGateDaily(ctx context.Context, spiderID string, date time.Time) (*contracts.GateDailyRow, error) {
	query := `
		SELECT spider_id, trade_date, stage, stage_name, allowed, reason, risk_mult
		FROM stages.gate_daily
		WHERE spider_id = $1 AND trade_date = $2
	`

	var (
		row    contracts.GateDailyRow
		stage  int
		reason string
	)
	err := r.pool.QueryRow(ctx, query, spiderID, contracts.NormalizeDate(date)).Scan(
		&row.SpiderID, &row.Date, &stage, &row.StageName, &row.Allowed, &reason, &row.RiskMult,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query gate row: %w", err)
	}

	row.Stage = contracts.Stage(stage)
	row.Reason = contracts.GateReason(reason)
	row.Date = contracts.NormalizeDate(row.Date)
	return &row, nil
}
