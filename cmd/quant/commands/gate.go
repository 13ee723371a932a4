package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/internal/batch"
	"github.com/wonny/stagegate/internal/brain"
	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
	"github.com/wonny/stagegate/internal/s5_gate"
)

// gateCmd represents the gate command
var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "S5 섹터 stage 게이트",
	Long: `섹터 stage로 매매 허용 여부를 판정합니다.

판정 순서:
  1. 게이트 비활성 → 허용 (gate_disabled)
  2. stage 기록 없음 → on_missing 정책 (missing_spider_stage)
  3. allow ∧ ¬block (block 우선)
  4. min_consecutive_days_in_allow 연속 허용일

Example:
  go run ./cmd/quant gate build
  go run ./cmd/quant gate check SECTOR_TECHNOLOGY 2024-06-03
  go run ./cmd/quant gate stocks`,
}

var (
	gateBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "일별 게이트 테이블 생성 (gate_daily.csv)",
		RunE:  runGateBuild,
	}

	gateCheckCmd = &cobra.Command{
		Use:   "check [spider_id] [date]",
		Short: "단일 (spider, date) 판정",
		Args:  cobra.ExactArgs(2),
		RunE:  runGateCheck,
	}

	gateStocksCmd = &cobra.Command{
		Use:   "stocks",
		Short: "종목 stage + 섹터 게이트 결합 (tradability)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchJob(cmd, func(ctx context.Context, a *app, opts brain.RunOptions) (*batch.Summary, error) {
				return a.orch.RunTradability(ctx, opts)
			})
		},
	}

	gateStoreCmd = &cobra.Command{
		Use:   "store",
		Short: "Stage Store 로드 상태",
		RunE:  runGateStore,
	}

	gateJSON bool
)

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.AddCommand(gateBuildCmd)
	gateCmd.AddCommand(gateCheckCmd)
	gateCmd.AddCommand(gateStocksCmd)
	gateCmd.AddCommand(gateStoreCmd)

	gateCheckCmd.Flags().BoolVar(&gateJSON, "json", false, "print the decision as JSON")
	gateStocksCmd.Flags().BoolVar(&batchResume, "resume", false, "skip tickers already ok in _progress.jsonl")
	gateStocksCmd.Flags().StringVar(&batchOnly, "only", "", "comma-separated tickers")
}

func runGateBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.orch.BuildGateTable(ctx)
	if err != nil {
		return err
	}

	byReason := make(map[contracts.GateReason]int)
	var first, last time.Time
	for i, r := range rows {
		byReason[r.Reason]++
		if i == 0 {
			first = r.Date
		}
		last = r.Date
	}

	fmt.Printf("✅ Gate table: %d rows", len(rows))
	if len(rows) > 0 {
		fmt.Printf(" (%s ~ %s)", contracts.ISODate(first), contracts.ISODate(last))
	}
	fmt.Println()
	for reason, n := range byReason {
		fmt.Printf("   - %s: %d\n", reason, n)
	}
	return nil
}

func runGateCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	spiderID := args[0]
	date, err := ingest.ParseDate(args[1])
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dec, err := a.engine.Decide(ctx, spiderID, date)
	if err != nil {
		return err
	}
	risk := s5_gate.RiskMultiplier(a.stage.SpiderGate, dec.Stage)

	if gateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"decision":    dec,
			"risk_mult":   risk,
			"config_hash": a.configHash,
		})
	}

	mark := "⛔"
	if dec.Allowed {
		mark = "✅"
	}
	fmt.Printf("%s %s @ %s\n", mark, dec.EntityID, dec.Date)
	fmt.Printf("   allowed:   %v\n", dec.Allowed)
	fmt.Printf("   reason:    %s\n", dec.Reason)
	if dec.Stage != nil {
		fmt.Printf("   stage:     %d (%s)\n", *dec.Stage, dec.StageName)
	}
	fmt.Printf("   risk_mult: %.2f\n", risk)

	if !a.store.HasEntity(spiderID) {
		fmt.Printf("   ⚠️  %s has no records in %s\n", spiderID, a.store.Stats().Source)
	}
	return nil
}

func runGateStore(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Load(ctx); err != nil {
		return err
	}
	stats := a.store.Stats()

	fmt.Printf("Stage Store (%s)\n", stats.Source)
	fmt.Printf("   records:    %d\n", stats.Records)
	fmt.Printf("   generation: %d\n", stats.Generation)
	for _, id := range a.store.Entities() {
		recs, err := a.store.EntityRecords(id, time.Time{}, time.Time{})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		lastRec := recs[len(recs)-1]
		fmt.Printf("   %-32s %5d rows  %s → %s  last=%d (%s)\n",
			id, len(recs), contracts.ISODate(recs[0].Date), contracts.ISODate(lastRec.Date), lastRec.Stage, lastRec.StageName)
	}
	return nil
}
