package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/internal/scheduler"
	"github.com/wonny/stagegate/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "파이프라인 스케줄러",
	Long: `S3 → S4 → S5 파이프라인을 cron 스케줄로 실행합니다.

스케줄은 SCHEDULE 환경변수 (초 필드 포함 6-field cron).
기본값: "0 30 22 * * 1-5" (평일 22:30)

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run stage_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작 (Ctrl+C 로 종료)",
		RunE:  runSchedulerStart,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 잡과 다음 실행 시각",
		RunE:  runSchedulerList,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job]",
		Short: "잡 즉시 실행 (동기)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerRun,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers every job the stage pipeline schedules
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	s := scheduler.New(a.log)
	if err := s.AddJob(jobs.NewPipelineJob(a.orch, a.cfg.Schedule, a.log)); err != nil {
		return nil, err
	}
	return s, nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := newScheduler(a)
	if err != nil {
		return err
	}
	s.Start()

	for _, name := range s.GetAllJobs() {
		next, _ := s.NextRun(name)
		fmt.Printf("⏰ %s next run: %s\n", name, next.Format("2006-01-02 15:04:05"))
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

func runSchedulerList(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := newScheduler(a)
	if err != nil {
		return err
	}

	stats := s.GetJobStats()
	for _, name := range s.GetAllJobs() {
		fmt.Printf("📋 %-24s %s\n", name, stats[name].Schedule)
	}
	return nil
}

func runSchedulerRun(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := newScheduler(a)
	if err != nil {
		return err
	}

	if err := s.RunJob(ctx, args[0]); err != nil {
		return err
	}

	st := s.GetJobStats()[args[0]]
	fmt.Printf("✅ %s finished (runs=%d, success=%.0f%%)\n", args[0], st.TotalRuns, st.SuccessRate*100)
	return nil
}
