package analysis

import "math"

// Pure indicator series. Every function takes oldest-first samples and
// returns a slice aligned index-for-index with its input, seeded from the
// first sample, so callers can always read the latest value at len-1.

// EMA computes an exponential moving average with k = 2/(length+1),
// seeded with the first sample.
func EMA(series []float64, length int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	k := 2.0 / (float64(length) + 1.0)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// ATR computes Wilder's average true range (RMA smoothing, k = 1/length),
// seeded with the first true range. The first bar uses its own close as the
// previous close, so its TR reduces to high-low.
func ATR(high, low, closes []float64, length int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	k := 1.0 / float64(length)
	prevClose := closes[0]
	for i := 0; i < n; i++ {
		tr := math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-prevClose), math.Abs(low[i]-prevClose)))
		if i == 0 {
			out[i] = tr
		} else {
			out[i] = (1-k)*out[i-1] + k*tr
		}
		prevClose = closes[i]
	}
	return out
}

const (
	atrTrailLength = 5
	atrTrailHHV    = 10
	atrTrailMult   = 3.0

	// Bars that pass the raw close through before the trailing line engages.
	// Fixed at 16 regardless of the ATR/HHV windows; changing it would shift
	// every early exit signal.
	atrTrailColdStart = 16
)

// ATRTrailing computes the volatility-channel breakout line: basis is
// high - 3*ATR(5), and the output is the highest basis over the trailing 10
// bars. The first 16 indices pass the raw close through unchanged.
func ATRTrailing(high, low, closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	a := ATR(high, low, closes, atrTrailLength)
	basis := make([]float64, n)
	for i := 0; i < n; i++ {
		basis[i] = high[i] - atrTrailMult*a[i]
	}

	for i := 0; i < n; i++ {
		if i < atrTrailColdStart {
			out[i] = closes[i]
			continue
		}
		start := i - atrTrailHHV + 1
		if start < 0 {
			start = 0
		}
		hh := basis[start]
		for j := start + 1; j <= i; j++ {
			if basis[j] > hh {
				hh = basis[j]
			}
		}
		out[i] = hh
	}
	return out
}

// Chandelier computes the chandelier-style exit channel over closes:
// long stop = highest close over the window - mult*ATR, short stop = lowest
// close + mult*ATR. The direction flag starts long (+1) and flips only when
// the close breaches the previous bar's opposite stop.
func Chandelier(high, low, closes []float64, length int, mult float64) (ceLong, ceShort []float64, dir []int) {
	n := len(closes)
	ceLong = make([]float64, n)
	ceShort = make([]float64, n)
	dir = make([]int, n)
	if n == 0 {
		return
	}

	a := ATR(high, low, closes, length)
	for i := 0; i < n; i++ {
		start := i - length + 1
		if start < 0 {
			start = 0
		}
		hi, lo := closes[start], closes[start]
		for j := start + 1; j <= i; j++ {
			if closes[j] > hi {
				hi = closes[j]
			}
			if closes[j] < lo {
				lo = closes[j]
			}
		}
		ceLong[i] = hi - mult*a[i]
		ceShort[i] = lo + mult*a[i]
	}

	dir[0] = 1
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > ceShort[i-1]:
			dir[i] = 1
		case closes[i] < ceLong[i-1]:
			dir[i] = -1
		default:
			dir[i] = dir[i-1]
		}
	}
	return
}

// SwingHighLow scans for confirmed pivot points: a bar whose high strictly
// exceeds all leftRight neighbors on both sides is a pivot high (lows
// analogously). It returns the most recent confirmed level of each kind;
// the ok flags are false when no pivot has confirmed in the window.
func SwingHighLow(high, low []float64, leftRight int) (swingHigh, swingLow float64, okHigh, okLow bool) {
	n := len(high)
	for i := leftRight; i < n-leftRight; i++ {
		isHigh, isLow := true, true
		for k := 1; k <= leftRight; k++ {
			if high[i] <= high[i-k] || high[i] <= high[i+k] {
				isHigh = false
			}
			if low[i] >= low[i-k] || low[i] >= low[i+k] {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			swingHigh, okHigh = high[i], true
		}
		if isLow {
			swingLow, okLow = low[i], true
		}
	}
	return
}
