package s4_stages

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stagegate/internal/contracts"
)

// Repository implements contracts.StageRepository
// ⭐ SSOT: stage 기록 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new stage repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveStages upserts driver output for one or more entities
func (r *Repository) SaveStages(ctx context.Context, kind contracts.EntityKind, records []contracts.StageRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO stages.stage_records
			(entity_id, entity_kind, trade_date, stage, stage_name, stage_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (entity_id, trade_date) DO UPDATE SET
			entity_kind = EXCLUDED.entity_kind,
			stage = EXCLUDED.stage,
			stage_name = EXCLUDED.stage_name,
			stage_reason = EXCLUDED.stage_reason,
			updated_at = NOW()`

	for _, rec := range records {
		batch.Queue(query, rec.EntityID, string(kind), rec.Date, int(rec.Stage), rec.StageName, rec.Reason())
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert stage record: %w", err)
		}
	}
	return nil
}

// GetStages retrieves an entity's stage history within a date range
func (r *Repository) GetStages(ctx context.Context, entityID string, from, to time.Time) ([]contracts.StageRecord, error) {
	query := `
		SELECT entity_id, trade_date, stage, stage_name, stage_reason
		FROM stages.stage_records
		WHERE entity_id = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, entityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	return scanStageRows(rows)
}

// LoadAll retrieves every stage record of an entity kind
func (r *Repository) LoadAll(ctx context.Context, kind contracts.EntityKind) ([]contracts.StageRecord, error) {
	query := `
		SELECT entity_id, trade_date, stage, stage_name, stage_reason
		FROM stages.stage_records
		WHERE entity_kind = $1
		ORDER BY entity_id, trade_date
	`

	rows, err := r.pool.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query all stages: %w", err)
	}
	defer rows.Close()

	return scanStageRows(rows)
}

func scanStageRows(rows pgx.Rows) ([]contracts.StageRecord, error) {
	var records []contracts.StageRecord
	for rows.Next() {
		var (
			rec    contracts.StageRecord
			stage  int
			reason string
		)
		if err := rows.Scan(&rec.EntityID, &rec.Date, &stage, &rec.StageName, &reason); err != nil {
			return nil, fmt.Errorf("scan stage row: %w", err)
		}
		rec.Stage = contracts.Stage(stage)
		rec.Date = contracts.NormalizeDate(rec.Date)
		rec.Reasons = contracts.SplitReason(reason)
		records = append(records, rec)
	}
	return records, rows.Err()
}
