package contracts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage is a discrete market-regime label in [1, 9]
type Stage int

const (
	StageUnknown           Stage = 0
	StageNotEligible       Stage = 1
	StageSharpDowntrend    Stage = 2
	StageDowntrend         Stage = 3
	StageBelowZone         Stage = 4
	StageLowerZone         Stage = 5
	StageBreakout          Stage = 6
	StageBreakoutConfirmed Stage = 7
	StageInZone            Stage = 8
	StageInZoneFading      Stage = 9
)

var stageNames = map[Stage]string{
	StageNotEligible:       "Not Eligible",
	StageSharpDowntrend:    "Sharp Downtrend",
	StageDowntrend:         "Downtrend",
	StageBelowZone:         "Below Zone",
	StageLowerZone:         "Lower Zone",
	StageBreakout:          "Breakout",
	StageBreakoutConfirmed: "Breakout Confirmed",
	StageInZone:            "In-Zone",
	StageInZoneFading:      "In-Zone (Fading)",
}

// AllStages lists every valid stage in ascending order
var AllStages = []Stage{
	StageNotEligible, StageSharpDowntrend, StageDowntrend, StageBelowZone, StageLowerZone,
	StageBreakout, StageBreakoutConfirmed, StageInZone, StageInZoneFading,
}

// Valid reports whether the stage is in [1, 9]
func (s Stage) Valid() bool {
	return s >= StageNotEligible && s <= StageInZoneFading
}

// Name returns the fixed display name, "Unknown" for invalid ids
func (s Stage) Name() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "Unknown"
}

// String returns the stringified id used as config key
func (s Stage) String() string {
	return strconv.Itoa(int(s))
}

// IsBreakout reports whether the stage counts as a demonstrated breakout
func (s Stage) IsBreakout() bool {
	return s == StageBreakout || s == StageBreakoutConfirmed
}

// IsInZone reports whether the stage is one of the in-zone labels
func (s Stage) IsInZone() bool {
	return s == StageInZone || s == StageInZoneFading
}

// ParseStage parses a stage id such as "7" or "7.0"
func ParseStage(raw string) (Stage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StageUnknown, fmt.Errorf("empty stage")
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return StageUnknown, fmt.Errorf("invalid stage %q", raw)
		}
		n = int(f)
	}

	s := Stage(n)
	if !s.Valid() {
		return StageUnknown, fmt.Errorf("stage %d out of range [1,9]", n)
	}
	return s, nil
}

// ReasonSeparator joins reason tags in persisted stage_reason cells
const ReasonSeparator = "|"

// StageRecord is the label assigned to one entity on one date
// ⭐ SSOT: Driver 출력 = Stage Store 입력
type StageRecord struct {
	EntityID  string    `json:"entity_id"`
	Date      time.Time `json:"date"`
	Stage     Stage     `json:"stage"`
	StageName string    `json:"stage_name"`
	Reasons   []string  `json:"reasons"`
}

// Reason renders the pipe-delimited stage_reason
func (r StageRecord) Reason() string {
	return strings.Join(r.Reasons, ReasonSeparator)
}

// SplitReason parses a persisted stage_reason cell
func SplitReason(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ReasonSeparator)
}
