package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "S1 유니버스 필터 + 섹터 멤버십",
	Long: `S1 유니버스를 만들고 섹터(spider) 멤버십 가중치를 계산합니다.

Example:
  go run ./cmd/quant universe filter --in data/universe/screener.csv
  go run ./cmd/quant universe memberships`,
}

var (
	universeFilterCmd = &cobra.Command{
		Use:   "filter",
		Short: "국가/시가총액/제외 규칙 필터",
		RunE:  runUniverseFilter,
	}

	universeMembershipsCmd = &cobra.Command{
		Use:   "memberships",
		Short: "섹터별 시가총액 가중치 계산",
		RunE:  runUniverseMemberships,
	}

	universeIn string
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeFilterCmd)
	universeCmd.AddCommand(universeMembershipsCmd)

	universeFilterCmd.Flags().StringVar(&universeIn, "in", "", "raw universe CSV (default <data>/universe/universe_raw.csv)")
}

func runUniverseFilter(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	in := universeIn
	if in == "" {
		in = a.paths.UniverseRaw
	}

	res, err := a.orch.FilterUniverse(ctx, in)
	if err != nil {
		return err
	}

	reasons := make(map[string]int)
	for _, reason := range res.Excluded {
		reasons[reason]++
	}

	fmt.Printf("✅ Universe: %d kept, %d excluded → %s\n", len(res.Kept), len(res.Excluded), a.paths.Universe)
	for reason, n := range reasons {
		fmt.Printf("   - %s: %d\n", reason, n)
	}
	return nil
}

func runUniverseMemberships(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	set, err := a.orch.BuildMemberships(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Memberships: %d members in %d sectors → %s\n", len(set.Members), len(set.Summaries), a.paths.Memberships)
	fmt.Printf("   worst |weight_sum - 1| = %.2e\n", set.WorstWeightSumError())
	for _, s := range set.Summaries {
		fmt.Printf("   %-32s members=%-4d top1=%s (%.1f%%)\n", s.SpiderID, s.Members, s.Top1Ticker, s.Top1Weight*100)
	}
	for _, w := range set.Warnings {
		fmt.Printf("   ⚠️  %s\n", w)
	}
	return nil
}
