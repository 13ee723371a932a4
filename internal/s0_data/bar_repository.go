package s0_data

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stagegate/internal/contracts"
)

// BarRepository implements contracts.BarRepository on data.daily_bars
// ⭐ SSOT: bar 테이블 접근은 여기서만
type BarRepository struct {
	pool *pgxpool.Pool
}

// NewBarRepository creates a new Postgres bar repository
func NewBarRepository(pool *pgxpool.Pool) *BarRepository {
	return &BarRepository{pool: pool}
}

// GetSeries retrieves bars within [from, to]; zero bounds are open
func (r *BarRepository) GetSeries(ctx context.Context, entityID string, kind contracts.EntityKind, from, to time.Time) (contracts.Series, error) {
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}

	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_bars
		WHERE entity_id = $1 AND entity_kind = $2 AND trade_date BETWEEN $3 AND $4
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, entityID, string(kind), from, to)
	if err != nil {
		return contracts.Series{}, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var (
			b          contracts.Bar
			o, h, l, c *float64
			vol        *float64
		)
		if err := rows.Scan(&b.Date, &o, &h, &l, &c, &vol); err != nil {
			return contracts.Series{}, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = contracts.NormalizeDate(b.Date)
		b.Open, b.High, b.Low, b.Close = orNaN(o), orNaN(h), orNaN(l), orNaN(c)
		if vol != nil {
			b.Volume = *vol
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return contracts.Series{}, fmt.Errorf("iterate bars: %w", err)
	}

	return contracts.NewSeries(entityID, kind, bars), nil
}

// ListEntities returns the distinct entity ids of a kind
func (r *BarRepository) ListEntities(ctx context.Context, kind contracts.EntityKind) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT entity_id FROM data.daily_bars
		WHERE entity_kind = $1
		ORDER BY entity_id
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SaveBatch upserts bars; NaN prices are stored as NULL
func (r *BarRepository) SaveBatch(ctx context.Context, entityID string, kind contracts.EntityKind, bars []contracts.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO data.daily_bars
			(entity_id, entity_kind, trade_date, open_price, high_price, low_price, close_price, volume, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (entity_id, trade_date) DO UPDATE SET
			entity_kind = EXCLUDED.entity_kind,
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			updated_at = NOW()`

	for _, b := range bars {
		batch.Queue(query, entityID, string(kind), b.Date,
			nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close), b.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert bar: %w", err)
		}
	}
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
