package s2_signals

import (
	"math"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/stageconfig"
)

// Frame holds every indicator column for one bar series
// 지표는 causal이므로 전체 시계열에서 한 번 계산한 i번째 값 == prefix[0..i]에서 계산한 값
type Frame struct {
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	EMAFast []float64
	EMAMid  []float64
	EMASlow []float64
	EMALong []float64

	DonchianHigh []float64
	DonchianLow  []float64

	BBMid   []float64
	BBUpper []float64
	BBLower []float64

	VolSMA []float64
	RelVol []float64

	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
}

// Compute builds the indicator frame for a bar series
func Compute(bars []contracts.Bar, ind stageconfig.Indicators) *Frame {
	n := len(bars)
	f := &Frame{
		Dates:  make([]time.Time, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, b := range bars {
		f.Dates[i] = b.Date
		f.Open[i] = b.Open
		f.High[i] = b.High
		f.Low[i] = b.Low
		f.Close[i] = b.Close
		// 거래량 결측 = 0
		if math.IsNaN(b.Volume) {
			f.Volume[i] = 0
		} else {
			f.Volume[i] = b.Volume
		}
	}

	lb := ind.Lookbacks
	f.EMAFast = EMA(f.Close, lb.EMAFast)
	f.EMAMid = EMA(f.Close, lb.EMAMid)
	f.EMASlow = EMA(f.Close, lb.EMASlow)
	f.EMALong = EMA(f.Close, lb.EMALong)

	ch := Donchian(f.High, f.Low, lb.Donchian)
	f.DonchianHigh, f.DonchianLow = ch.High, ch.Low

	bb := Bollinger(f.Close, lb.BollingerPeriod, ind.Bollinger.Stdev)
	f.BBMid, f.BBUpper, f.BBLower = bb.Mid, bb.Upper, bb.Lower

	f.VolSMA = SMA(f.Volume, lb.VolAvgPeriod)
	f.RelVol = RelativeVolume(f.Volume, lb.VolAvgPeriod)

	m := ind.Momentum
	f.RSI = RSI(f.Close, m.RSIPeriod)
	macd := MACD(f.Close, m.MACDFast, m.MACDSlow, m.MACDSignal)
	f.MACD, f.MACDSignal, f.MACDHist = macd.MACD, macd.Signal, macd.Hist

	return f
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Dates)
}

// Snapshot is the indicator state of a single bar; NaN marks an undefined value
type Snapshot struct {
	Date         time.Time
	Close        float64
	EMAFast      float64
	EMAMid       float64
	EMASlow      float64
	EMALong      float64
	DonchianHigh float64 // prior bars only
	DonchianLow  float64 // prior bars only
	BBMid        float64
	BBUpper      float64
	BBLower      float64
	RelVol       float64
}

// Snapshot returns the indicator state at row i
func (f *Frame) Snapshot(i int) Snapshot {
	return Snapshot{
		Date:         f.Dates[i],
		Close:        f.Close[i],
		EMAFast:      f.EMAFast[i],
		EMAMid:       f.EMAMid[i],
		EMASlow:      f.EMASlow[i],
		EMALong:      f.EMALong[i],
		DonchianHigh: f.DonchianHigh[i],
		DonchianLow:  f.DonchianLow[i],
		BBMid:        f.BBMid[i],
		BBUpper:      f.BBUpper[i],
		BBLower:      f.BBLower[i],
		RelVol:       f.RelVol[i],
	}
}
