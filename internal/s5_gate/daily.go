package s5_gate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wonny/stagegate/internal/contracts"
)

var (
	// ErrUnknownSpider is returned when the store has no records for a spider
	ErrUnknownSpider = errors.New("no stage records for spider")
	// ErrNoDateOverlap is returned when no stock date has a sector stage
	ErrNoDateOverlap = errors.New("no stock date matches a sector stage")
)

// BuildDailyTable materializes a decision for every (spider, date) in the store
// 정렬: (date, spider_id)
func BuildDailyTable(ctx context.Context, e *Engine) ([]contracts.GateDailyRow, error) {
	if err := e.store.Load(ctx); err != nil {
		return nil, err
	}
	recs, err := e.store.Records()
	if err != nil {
		return nil, err
	}

	rows := make([]contracts.GateDailyRow, 0, len(recs))
	for _, rec := range recs {
		dec, err := e.Decide(ctx, rec.EntityID, rec.Date)
		if err != nil {
			return nil, err
		}
		stage := rec.Stage
		rows = append(rows, contracts.GateDailyRow{
			Date:      rec.Date,
			SpiderID:  rec.EntityID,
			Stage:     stage,
			StageName: dec.StageName,
			Allowed:   dec.Allowed,
			Reason:    dec.Reason,
			RiskMult:  RiskMultiplier(e.cfg, &stage),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].SpiderID < rows[j].SpiderID
	})
	return rows, nil
}

// AttachSectorStage joins a stock's stage history with its sector stage and gate decision
func AttachSectorStage(ctx context.Context, e *Engine, ticker, spiderID string, stock []contracts.StageRecord) ([]contracts.TradabilityRow, error) {
	if err := e.store.Load(ctx); err != nil {
		return nil, err
	}
	if !e.store.HasEntity(spiderID) {
		return nil, fmt.Errorf("%s → %s: %w", ticker, spiderID, ErrUnknownSpider)
	}

	rows := make([]contracts.TradabilityRow, 0, len(stock))
	matched := 0
	for _, rec := range stock {
		dec, err := e.Decide(ctx, spiderID, rec.Date)
		if err != nil {
			return nil, err
		}

		row := contracts.TradabilityRow{
			Date:        contracts.NormalizeDate(rec.Date),
			Ticker:      ticker,
			SpiderID:    spiderID,
			Stage:       rec.Stage,
			StageName:   rec.StageName,
			GateAllowed: dec.Allowed,
			GateReason:  dec.Reason,
		}
		// 게이트 비활성이면 decision에 stage가 없으므로 store에서 직접 조회
		sector, ok, err := e.store.Get(spiderID, rec.Date)
		if err != nil {
			return nil, err
		}
		if ok {
			st := sector.Stage
			row.SectorStage = &st
			row.SectorStageName = sector.StageName
			matched++
		}
		row.RiskMult = RiskMultiplier(e.cfg, row.SectorStage)
		rows = append(rows, row)
	}

	if len(stock) > 0 && matched == 0 {
		return nil, fmt.Errorf("%s → %s: %w", ticker, spiderID, ErrNoDateOverlap)
	}
	return rows, nil
}

// GateDailyColumns is the header of the daily gate table
var GateDailyColumns = []string{"date", "spider_id", "sector_stage", "sector_stage_name", "allowed", "reason", "risk_mult"}

// WriteGateDailyCSV writes the daily gate table
func WriteGateDailyCSV(w io.Writer, rows []contracts.GateDailyRow) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(GateDailyColumns)
	for _, r := range rows {
		_ = cw.Write([]string{
			contracts.ISODate(r.Date),
			r.SpiderID,
			r.Stage.String(),
			r.StageName,
			strconv.FormatBool(r.Allowed),
			string(r.Reason),
			strconv.FormatFloat(r.RiskMult, 'g', -1, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}

// TradabilityColumns is the header of a stock tradability file
var TradabilityColumns = []string{
	"date", "ticker", "stage", "stage_name",
	"spider_id", "sector_stage", "sector_stage_name",
	"gate_allowed", "gate_reason", "risk_mult",
}

// WriteTradabilityCSV writes joined stock rows; unknown sector stage is blank
func WriteTradabilityCSV(w io.Writer, rows []contracts.TradabilityRow) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(TradabilityColumns)
	for _, r := range rows {
		sectorStage := ""
		if r.SectorStage != nil {
			sectorStage = r.SectorStage.String()
		}
		_ = cw.Write([]string{
			contracts.ISODate(r.Date),
			r.Ticker,
			r.Stage.String(),
			r.StageName,
			r.SpiderID,
			sectorStage,
			r.SectorStageName,
			strconv.FormatBool(r.GateAllowed),
			string(r.GateReason),
			strconv.FormatFloat(r.RiskMult, 'g', -1, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}
