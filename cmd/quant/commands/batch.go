package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/internal/batch"
	"github.com/wonny/stagegate/internal/brain"
	"github.com/wonny/stagegate/internal/contracts"
)

var (
	batchResume bool
	batchOnly   string
)

// spidersCmd represents the spiders command
var spidersCmd = &cobra.Command{
	Use:   "spiders",
	Short: "S3 섹터 합성 시계열",
	Long: `멤버십 가중치로 섹터 합성 OHLCV(spider)를 만듭니다.

Example:
  go run ./cmd/quant spiders build
  go run ./cmd/quant spiders build --resume`,
}

var spidersBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "모든 섹터 composite 생성",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatchJob(cmd, func(ctx context.Context, a *app, opts brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunSpiders(ctx, opts)
		})
	},
}

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify [stocks|spiders]",
	Short: "S4 point-in-time stage 분류",
	Long: `엔티티별로 날짜마다 stage(1-9)를 부여합니다.
stage(t)는 t 이전(포함) bar에만 의존합니다.

Example:
  go run ./cmd/quant classify spiders
  go run ./cmd/quant classify stocks --only AAPL,MSFT`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"stocks", "spiders"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		return runBatchJob(cmd, func(ctx context.Context, a *app, opts brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunStages(ctx, kind, opts)
		})
	},
}

// featuresCmd represents the features command
var featuresCmd = &cobra.Command{
	Use:   "features [stocks|spiders]",
	Short: "지표 프레임 CSV 내보내기",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		return runBatchJob(cmd, func(ctx context.Context, a *app, opts brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunFeatures(ctx, kind, opts)
		})
	},
}

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry [job]",
	Short: "_errors.jsonl 의 실패 엔티티만 재실행",
	Long: `직전 배치에서 실패한 엔티티만 다시 실행합니다.
결과는 _retry_progress.jsonl / _retry_errors.jsonl 에 기록됩니다.

Jobs: spiders, stages_stock, stages_spider, features_stock, features_spider, tradability

Example:
  go run ./cmd/quant retry stages_stock`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

// pipelineCmd represents the pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "일일 파이프라인 1회 실행 (spiders → classify spiders → gate build)",
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(spidersCmd)
	spidersCmd.AddCommand(spidersBuildCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(pipelineCmd)

	for _, c := range []*cobra.Command{spidersBuildCmd, classifyCmd, featuresCmd} {
		c.Flags().BoolVar(&batchResume, "resume", false, "skip entities already ok in _progress.jsonl")
		c.Flags().StringVar(&batchOnly, "only", "", "comma-separated entity ids")
	}
	pipelineCmd.Flags().BoolVar(&batchResume, "resume", false, "skip entities already ok in _progress.jsonl")
}

func parseKind(raw string) (contracts.EntityKind, error) {
	switch strings.ToLower(raw) {
	case "stock", "stocks":
		return contracts.KindStock, nil
	case "spider", "spiders", "sector", "sectors":
		return contracts.KindSpider, nil
	}
	return "", fmt.Errorf("unknown entity kind %q (stocks|spiders)", raw)
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type batchFunc func(ctx context.Context, a *app, opts brain.RunOptions) (*batch.Summary, error)

func runBatchJob(cmd *cobra.Command, fn batchFunc) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := fn(ctx, a, brain.RunOptions{Resume: batchResume, Only: splitList(batchOnly)})
	printSummary(sum)
	return err
}

func runRetry(cmd *cobra.Command, args []string) error {
	opts := brain.RunOptions{Retry: true}

	var fn batchFunc
	switch args[0] {
	case brain.JobSpiders:
		fn = func(ctx context.Context, a *app, _ brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunSpiders(ctx, opts)
		}
	case brain.JobStagesStock, brain.JobStagesSpider:
		kind := contracts.KindStock
		if args[0] == brain.JobStagesSpider {
			kind = contracts.KindSpider
		}
		fn = func(ctx context.Context, a *app, _ brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunStages(ctx, kind, opts)
		}
	case brain.JobFeaturesStock, brain.JobFeaturesSpider:
		kind := contracts.KindStock
		if args[0] == brain.JobFeaturesSpider {
			kind = contracts.KindSpider
		}
		fn = func(ctx context.Context, a *app, _ brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunFeatures(ctx, kind, opts)
		}
	case brain.JobTradability:
		fn = func(ctx context.Context, a *app, _ brain.RunOptions) (*batch.Summary, error) {
			return a.orch.RunTradability(ctx, opts)
		}
	default:
		return fmt.Errorf("unknown job %q", args[0])
	}

	return runBatchJob(cmd, fn)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.orch.Run(ctx, brain.RunConfig{RunID: brain.GenerateRunID(), Resume: batchResume})
	for _, job := range []string{brain.JobSpiders, brain.JobStagesSpider} {
		printSummary(result.Summaries[job])
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Pipeline %s completed in %s: %s (%d gate rows)\n",
		result.RunID, result.Duration, strings.Join(result.CompletedStages, " → "), result.GateRows)
	return nil
}
