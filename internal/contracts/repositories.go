package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// BarRepository manages daily OHLCV bars per entity
type BarRepository interface {
	GetSeries(ctx context.Context, entityID string, kind EntityKind, from, to time.Time) (Series, error)
	ListEntities(ctx context.Context, kind EntityKind) ([]string, error)
	SaveBatch(ctx context.Context, entityID string, kind EntityKind, bars []Bar) error
}

// StageRepository persists driver output
type StageRepository interface {
	SaveStages(ctx context.Context, kind EntityKind, records []StageRecord) error
	GetStages(ctx context.Context, entityID string, from, to time.Time) ([]StageRecord, error)
	LoadAll(ctx context.Context, kind EntityKind) ([]StageRecord, error)
}

// GateRepository persists the materialized daily gate table
type GateRepository interface {
	SaveGateDaily(ctx context.Context, rows []GateDailyRow) error
	GetGateDaily(ctx context.Context, spiderID string, date time.Time) (*GateDailyRow, error)
}
