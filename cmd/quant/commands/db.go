package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/pkg/config"
	"github.com/wonny/stagegate/pkg/database"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 백엔드 관리",
	Long: `--backend postgres 에서 쓰는 DB를 관리합니다.

Example:
  go run ./cmd/quant db migrate
  go run ./cmd/quant db status`,
}

var (
	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "스키마 생성 (idempotent)",
		RunE:  runDBMigrate,
	}

	dbStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "연결 상태와 풀 통계",
		RunE:  runDBStatus,
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
}

func openDB() (*database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Database.Enabled() {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return database.New(cfg)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Println("✅ Schema is up to date")
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("❌ Database unhealthy: %s\n", status.Error)
		return err
	}

	fmt.Println("✅ Database healthy")
	fmt.Printf("   response:    %s\n", status.ResponseTime)
	fmt.Printf("   total conns: %d (idle %d, acquired %d, max %d)\n",
		status.Stats.TotalConns, status.Stats.IdleConns, status.Stats.AcquiredConns, status.Stats.MaxConns)
	fmt.Printf("   acquires:    %d\n", status.Stats.AcquireCount)
	return nil
}
