package s2_signals

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/wonny/stagegate/internal/contracts"
)

// FeatureColumns is the header of an exported feature file
var FeatureColumns = []string{
	"date", "entity_id", "open", "high", "low", "close", "volume",
	"ema_fast", "ema_mid", "ema_slow", "ema_long",
	"donch_high_prev", "donch_low_prev",
	"bb_mid", "bb_upper", "bb_lower",
	"vol_sma", "rel_vol", "vol_surge",
	"rsi", "macd", "macd_signal", "macd_hist",
}

// WriteFeaturesCSV exports the frame as one row per bar
// surge는 rel_vol >= threshold, NaN은 빈 칸
func WriteFeaturesCSV(w io.Writer, entityID string, f *Frame, surgeThreshold float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FeatureColumns); err != nil {
		return fmt.Errorf("write feature header: %w", err)
	}

	for i := 0; i < f.Len(); i++ {
		surge := f.RelVol[i] >= surgeThreshold
		row := []string{
			contracts.ISODate(f.Dates[i]), entityID,
			formatFloat(f.Open[i]), formatFloat(f.High[i]), formatFloat(f.Low[i]), formatFloat(f.Close[i]), formatFloat(f.Volume[i]),
			formatFloat(f.EMAFast[i]), formatFloat(f.EMAMid[i]), formatFloat(f.EMASlow[i]), formatFloat(f.EMALong[i]),
			formatFloat(f.DonchianHigh[i]), formatFloat(f.DonchianLow[i]),
			formatFloat(f.BBMid[i]), formatFloat(f.BBUpper[i]), formatFloat(f.BBLower[i]),
			formatFloat(f.VolSMA[i]), formatFloat(f.RelVol[i]), strconv.FormatBool(surge),
			formatFloat(f.RSI[i]), formatFloat(f.MACD[i]), formatFloat(f.MACDSignal[i]), formatFloat(f.MACDHist[i]),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write feature row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
