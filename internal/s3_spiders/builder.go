package s3_spiders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/pkg/logger"
)

// ErrEmptyComposite is returned when no day reaches the coverage minimum
var ErrEmptyComposite = errors.New("composite has no rows above coverage minimum")

// Builder loads member bars, aggregates and persists spider composites
type Builder struct {
	members     contracts.BarRepository // stock bars
	spiders     contracts.BarRepository // composite 저장소
	auditDir    string
	minCoverage float64
	logger      *logger.Logger
}

// NewBuilder creates a new spider Builder; auditDir == "" disables audit files
func NewBuilder(members, spiders contracts.BarRepository, auditDir string, minCoverage float64, log *logger.Logger) *Builder {
	return &Builder{
		members:     members,
		spiders:     spiders,
		auditDir:    auditDir,
		minCoverage: minCoverage,
		logger:      log.WithField("module", "spiders"),
	}
}

// Build aggregates one sector and saves the composite
func (b *Builder) Build(ctx context.Context, spiderID string, members []contracts.Membership) (*AggregateResult, error) {
	bars := make(map[string]contracts.Series, len(members))
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := b.members.GetSeries(ctx, m.Ticker, contracts.KindStock, time.Time{}, time.Time{})
		if err != nil {
			// 결측 멤버는 집계에서 제외 (MissingMembers로 보고)
			b.logger.WithError(err).WithField("ticker", m.Ticker).Debug("Member bars unavailable")
			continue
		}
		bars[m.Ticker] = s
	}

	res, err := Aggregate(spiderID, members, bars, b.minCoverage)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return res, fmt.Errorf("%s: %w", spiderID, ErrEmptyComposite)
	}

	if err := b.spiders.SaveBatch(ctx, spiderID, contracts.KindSpider, res.Bars()); err != nil {
		return res, fmt.Errorf("save composite %s: %w", spiderID, err)
	}
	if b.auditDir != "" {
		if err := b.writeAudit(spiderID, res.Rows); err != nil {
			return res, err
		}
	}

	b.logger.WithFields(map[string]interface{}{
		"spider_id":       spiderID,
		"rows":            len(res.Rows),
		"members_total":   res.MembersTotal,
		"members_missing": len(res.MissingMembers),
		"dropped_days":    res.DroppedDays,
		"coverage_median": res.CoverageMedian,
	}).Info("Spider composite built")

	return res, nil
}

func (b *Builder) writeAudit(spiderID string, rows []contracts.CompositeBar) error {
	if err := os.MkdirAll(b.auditDir, 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.Create(filepath.Join(b.auditDir, spiderID+".csv"))
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}
	defer f.Close()

	if err := WriteCompositeCSV(f, rows); err != nil {
		return fmt.Errorf("write audit %s: %w", spiderID, err)
	}
	return nil
}
