package analysis

import (
	"futures_control/internal/exchange"
	"futures_control/internal/models"
)

const (
	ceLength = 22
	ceMult   = 3.0

	swingLeftRight = 5

	emaFastLength = 13
	emaSlowLength = 26
)

// EvaluateExits decides whether any enabled exit condition currently
// recommends closing the position. The fast window (TF1) is evaluated first;
// if any enabled TF1 condition fires the slow window (TF3) is not consulted.
// The returned string names the condition that fired, for logs and metrics.
//
// All candle-based conditions compare the latest close against the latest
// indicator value; the swing conditions compare the live ticker price against
// the last confirmed pivot level.
func EvaluateExits(side models.Side, price float64, fast, slow []exchange.Kline, set models.ExitSet) (bool, string) {
	if fired, name := evaluateWindow(side, price, fast, set[models.TF1], "TF1"); fired {
		return true, name
	}
	return evaluateWindow(side, price, slow, set[models.TF3], "TF3")
}

func evaluateWindow(side models.Side, price float64, candles []exchange.Kline, toggles map[string]bool, label string) (bool, string) {
	if len(candles) == 0 || len(toggles) == 0 {
		return false, ""
	}

	high, low, closes := splitOHLC(candles)
	last := closes[len(closes)-1]

	if toggles[models.ExitATR] {
		line := ATRTrailing(high, low, closes)
		if breached(side, last, line[len(line)-1]) {
			return true, label + " " + models.ExitATR
		}
	}

	if toggles[models.ExitCE] {
		ceLong, ceShort, _ := Chandelier(high, low, closes, ceLength, ceMult)
		if side == models.SideLong && last < ceLong[len(ceLong)-1] {
			return true, label + " " + models.ExitCE
		}
		if side == models.SideShort && last > ceShort[len(ceShort)-1] {
			return true, label + " " + models.ExitCE
		}
	}

	if toggles[models.ExitEMA13] {
		ema := EMA(closes, emaFastLength)
		if breached(side, last, ema[len(ema)-1]) {
			return true, label + " " + models.ExitEMA13
		}
	}

	if toggles[models.ExitEMA26] {
		ema := EMA(closes, emaSlowLength)
		if breached(side, last, ema[len(ema)-1]) {
			return true, label + " " + models.ExitEMA26
		}
	}

	if toggles[models.ExitSwingHigh] || toggles[models.ExitSwingLow] {
		swingHigh, swingLow, okHigh, okLow := SwingHighLow(high, low, swingLeftRight)
		if toggles[models.ExitSwingHigh] && okHigh && side == models.SideShort && price > swingHigh {
			return true, label + " " + models.ExitSwingHigh
		}
		if toggles[models.ExitSwingLow] && okLow && side == models.SideLong && price < swingLow {
			return true, label + " " + models.ExitSwingLow
		}
	}

	return false, ""
}

// breached reports a close on the wrong side of a stop line
func breached(side models.Side, last, line float64) bool {
	if side == models.SideLong {
		return last < line
	}
	return last > line
}

func splitOHLC(candles []exchange.Kline) (high, low, closes []float64) {
	high = make([]float64, len(candles))
	low = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	for i, k := range candles {
		high[i] = k.High
		low[i] = k.Low
		closes[i] = k.Close
	}
	return
}
