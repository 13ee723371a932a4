package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	stageConfigPath string
	dataDir         string
	workers         int
	backend         string
	verbose         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "stagegate - 섹터 stage 기반 매매 게이트",
	Long: `stagegate Unified CLI

섹터 합성 시계열(spider)의 시장 국면(stage 1-9)을 분류하고
그 결과로 종목 매매 허용 여부를 판정합니다.

Pipeline:
  S1 universe → memberships → S3 spiders → S4 classify → S5 gate

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant universe filter
  go run ./cmd/quant spiders build
  go run ./cmd/quant classify spiders
  go run ./cmd/quant gate check SECTOR_TECHNOLOGY 2024-06-03
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&stageConfigPath, "stage-config", "", "stage config yaml (default STAGEGATE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "artifact root (default DATA_DIR)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker pool size (default WORKERS)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "file", "bars/stages/gate storage (file|postgres)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
