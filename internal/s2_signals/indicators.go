package s2_signals

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// ⭐ SSOT: 지표 계산은 여기서만
// 모든 함수는 causal: out[i]는 in[0..i]에만 의존. warmup 구간은 NaN.
// 윈도우 지표는 NaN 없는 구간마다 계산하므로 결측이 창을 벗어나면 다시 정의됨.

// EMA returns the recursive exponential moving average (alpha = 2/(span+1)) seeded with the first observation
// NaN 입력은 건너뛰고 직전 값을 유지하되, 그동안 이전 가중치는 계속 감쇠
func EMA(in []float64, span int) []float64 {
	out := nanSeries(len(in))
	if span < 1 {
		return out
	}

	alpha := 2.0 / (float64(span) + 1)
	weighted := math.NaN()
	oldWt := 1.0
	for i, x := range in {
		observed := !math.IsNaN(x)
		if math.IsNaN(weighted) {
			if observed {
				weighted = x
				oldWt = 1
			}
		} else {
			oldWt *= 1 - alpha
			if observed {
				if weighted != x {
					weighted = (oldWt*weighted + alpha*x) / (oldWt + alpha)
				}
				oldWt = 1
			}
		}
		out[i] = weighted
	}
	return out
}

// SMA returns the simple moving average over a full window
func SMA(in []float64, window int) []float64 {
	if window < 1 {
		return nanSeries(len(in))
	}
	return bySegment(in, window, func(seg []float64) []float64 {
		return maskWarmup(talib.Sma(seg, window), window-1)
	})
}

// RollingStd returns the population standard deviation (ddof=0)
func RollingStd(in []float64, window int) []float64 {
	if window < 1 {
		return nanSeries(len(in))
	}
	return bySegment(in, window, func(seg []float64) []float64 {
		return maskWarmup(talib.StdDev(seg, window, 1.0), window-1)
	})
}

// Bands holds Bollinger mid/upper/lower
type Bands struct {
	Mid   []float64
	Upper []float64
	Lower []float64
}

// Bollinger returns SMA mid with ±k population standard deviations
func Bollinger(in []float64, window int, k float64) Bands {
	n := len(in)
	out := Bands{Mid: nanSeries(n), Upper: nanSeries(n), Lower: nanSeries(n)}
	if window < 1 {
		return out
	}

	for _, sg := range segments(in, window) {
		upper, mid, lower := talib.BBands(in[sg.start:sg.end], window, k, k, talib.SMA)
		copy(out.Mid[sg.start:sg.end], maskWarmup(mid, window-1))
		copy(out.Upper[sg.start:sg.end], maskWarmup(upper, window-1))
		copy(out.Lower[sg.start:sg.end], maskWarmup(lower, window-1))
	}
	return out
}

// Channel holds Donchian high/low
type Channel struct {
	High []float64
	Low  []float64
}

// Donchian returns the channel of the window strictly before each bar
// out[i] = max(high[i-window..i-1]), so a bar never breaks out of itself
func Donchian(high, low []float64, window int) Channel {
	n := len(high)
	out := Channel{High: nanSeries(n), Low: nanSeries(n)}
	if window < 1 || n <= window || len(low) != n {
		return out
	}

	hi := rollingExtreme(high, window, talib.Max)
	lo := rollingExtreme(low, window, talib.Min)
	for i := window; i < n; i++ {
		out.High[i] = hi[i-1]
		out.Low[i] = lo[i-1]
	}
	return out
}

func rollingExtreme(in []float64, window int, fn func([]float64, int) []float64) []float64 {
	return bySegment(in, window, func(seg []float64) []float64 {
		// talib.Max/Min은 window < 2에서 0을 반환
		if window < 2 {
			return append([]float64(nil), seg...)
		}
		return maskWarmup(fn(seg, window), window-1)
	})
}

// RelativeVolume returns volume / SMA(volume, window); NaN when the average is 0
func RelativeVolume(volume []float64, window int) []float64 {
	avg := SMA(volume, window)
	out := nanSeries(len(volume))
	for i, v := range volume {
		if avg[i] > 0 {
			out[i] = v / avg[i]
		}
	}
	return out
}

// RSI returns Wilder's relative strength index
func RSI(in []float64, period int) []float64 {
	if period < 2 {
		return nanSeries(len(in))
	}
	return bySegment(in, period+1, func(seg []float64) []float64 {
		return maskWarmup(talib.Rsi(seg, period), period)
	})
}

// MACDSeries holds MACD line, signal and histogram
type MACDSeries struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD returns the moving average convergence/divergence trio
func MACD(in []float64, fast, slow, signal int) MACDSeries {
	n := len(in)
	out := MACDSeries{MACD: nanSeries(n), Signal: nanSeries(n), Hist: nanSeries(n)}
	lookback := slow + signal - 2
	if fast < 1 || slow <= fast || signal < 1 {
		return out
	}

	for _, sg := range segments(in, lookback+1) {
		m, s, h := talib.Macd(in[sg.start:sg.end], fast, slow, signal)
		copy(out.MACD[sg.start:sg.end], maskWarmup(m, lookback))
		copy(out.Signal[sg.start:sg.end], maskWarmup(s, lookback))
		copy(out.Hist[sg.start:sg.end], maskWarmup(h, lookback))
	}
	return out
}

// segment is a half-open run [start, end) of non-NaN values
type segment struct {
	start, end int
}

// segments returns the NaN-free runs holding at least minLen values
func segments(in []float64, minLen int) []segment {
	var out []segment
	for i := 0; i < len(in); {
		if math.IsNaN(in[i]) {
			i++
			continue
		}
		start := i
		for i < len(in) && !math.IsNaN(in[i]) {
			i++
		}
		if i-start >= minLen {
			out = append(out, segment{start: start, end: i})
		}
	}
	return out
}

// bySegment runs fn over every NaN-free run; positions outside a long enough run stay NaN
func bySegment(in []float64, minLen int, fn func(seg []float64) []float64) []float64 {
	out := nanSeries(len(in))
	for _, sg := range segments(in, minLen) {
		copy(out[sg.start:sg.end], fn(in[sg.start:sg.end]))
	}
	return out
}

// maskWarmup overwrites the first `lookback` values (talib fills them with 0)
func maskWarmup(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
