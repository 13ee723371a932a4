package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Stage
		wantErr bool
	}{
		{name: "plain int", raw: "7", want: StageBreakoutConfirmed},
		{name: "float cell", raw: "8.0", want: StageInZone},
		{name: "padded", raw: " 3 ", want: StageDowntrend},
		{name: "empty", raw: "", wantErr: true},
		{name: "zero", raw: "0", wantErr: true},
		{name: "too large", raw: "10", wantErr: true},
		{name: "fractional", raw: "7.5", wantErr: true},
		{name: "garbage", raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStage(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStage_Names(t *testing.T) {
	assert.Len(t, AllStages, 9)
	for _, s := range AllStages {
		assert.True(t, s.Valid())
		assert.NotEqual(t, "Unknown", s.Name())
	}

	assert.Equal(t, "In-Zone (Fading)", StageInZoneFading.Name())
	assert.Equal(t, "Unknown", Stage(42).Name())
	assert.Equal(t, "7", StageBreakoutConfirmed.String())
	assert.True(t, StageBreakout.IsBreakout())
	assert.False(t, StageInZone.IsBreakout())
	assert.True(t, StageInZoneFading.IsInZone())
}

func TestStageRecord_Reason(t *testing.T) {
	r := StageRecord{
		EntityID: "SECTOR_TECHNOLOGY",
		Date:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Stage:    StageInZone,
		Reasons:  []string{"above_ema_long", "in_value_zone"},
	}

	assert.Equal(t, "above_ema_long|in_value_zone", r.Reason())
	assert.Equal(t, r.Reasons, SplitReason(r.Reason()))
	assert.Nil(t, SplitReason("  "))
}
