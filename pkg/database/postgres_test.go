package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/pkg/config"
)

func TestNew_NotConfigured(t *testing.T) {
	cfg := &config.Config{}

	db, err := New(cfg)
	assert.Nil(t, db)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{
		"data.daily_bars",
		"stages.stage_records",
		"stages.gate_daily",
		"stages.spider_memberships",
	} {
		assert.True(t, strings.Contains(schemaSQL, table), table)
	}
}

func TestNew_Integration(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, db.EnsureSchema(ctx))

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Stats.MaxConns, int32(0))
}
