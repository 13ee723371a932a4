package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/internal/stageconfig"
	"github.com/wonny/stagegate/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "stage 설정 관리",
}

var (
	configCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "stage 설정 검증 + config hash 출력",
		RunE:  runConfigCheck,
	}

	configSnapshot bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
	configCheckCmd.Flags().BoolVar(&configSnapshot, "snapshot", false, "print the audit snapshot as JSON")
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	path := cfg.StageConfigPath
	if stageConfigPath != "" {
		path = stageConfigPath
	}

	stage, raw, err := stageconfig.Load(path)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return err
	}

	snap, err := stageconfig.NewSnapshot(stage, raw)
	if err != nil {
		return err
	}
	if configSnapshot {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("✅ %s is valid (version %d)\n", path, snap.Version)
	fmt.Printf("   config_hash: %s\n", snap.ConfigHash)
	fmt.Printf("   evaluation:  %s\n", stage.StageLogic.Evaluation)
	fmt.Printf("   gate:        enabled=%v allow=%v block=%v min_days=%d on_missing=%s\n",
		stage.SpiderGate.Enabled, stage.SpiderGate.AllowStages, stage.SpiderGate.BlockStages,
		stage.SpiderGate.MinConsecutiveDaysInAllow, stage.SpiderGate.OnMissing)

	for _, w := range stageconfig.Warnings(stage) {
		fmt.Printf("   ⚠️  [%s] %s\n", w.Code, w.Message)
	}
	return nil
}
