package analysis

import (
	"testing"

	"futures_control/internal/exchange"
	"futures_control/internal/models"
)

// flatCandles returns n zero-range candles at the given price
func flatCandles(n int, price float64) []exchange.Kline {
	out := make([]exchange.Kline, n)
	for i := range out {
		out[i] = exchange.Kline{Open: price, High: price, Low: price, Close: price}
	}
	return out
}

// spikeCandles is the short-squeeze fixture: a long flat stretch at 100
// with a final candle at 120. The chandelier short stop sits a few percent
// above 100, so the last close is far through it.
func spikeCandles() []exchange.Kline {
	candles := flatCandles(120, 100)
	candles[119] = exchange.Kline{Open: 100, High: 120, Low: 120, Close: 120}
	return candles
}

func TestEvaluateExitsNoTogglesNeverFires(t *testing.T) {
	set := models.NewExitSet()
	fired, name := EvaluateExits(models.SideShort, 120, spikeCandles(), spikeCandles(), set)
	if fired {
		t.Fatalf("no enabled conditions must never fire, got %q", name)
	}
}

func TestEvaluateExitsCEShort(t *testing.T) {
	set := models.NewExitSet()
	set[models.TF1][models.ExitCE] = true

	fired, name := EvaluateExits(models.SideShort, 120, spikeCandles(), flatCandles(120, 100), set)
	if !fired {
		t.Fatal("short squeeze through the chandelier stop must fire")
	}
	if name != "TF1 CE" {
		t.Fatalf("expected TF1 CE, got %q", name)
	}
}

func TestEvaluateExitsCEQuietMarketHolds(t *testing.T) {
	set := models.NewExitSet()
	set[models.TF1][models.ExitCE] = true

	fired, name := EvaluateExits(models.SideShort, 100, flatCandles(120, 100), flatCandles(120, 100), set)
	if fired {
		t.Fatalf("flat market must not fire, got %q", name)
	}
}

func TestEvaluateExitsFastWindowWins(t *testing.T) {
	set := models.NewExitSet()
	set[models.TF1][models.ExitCE] = true
	set[models.TF3][models.ExitCE] = true

	// Both windows breached; the fast window must be the one reported.
	fired, name := EvaluateExits(models.SideShort, 120, spikeCandles(), spikeCandles(), set)
	if !fired {
		t.Fatal("expected a trigger")
	}
	if name != "TF1 CE" {
		t.Fatalf("fast window must shadow the slow one, got %q", name)
	}
}

func TestEvaluateExitsSlowWindowAlone(t *testing.T) {
	set := models.NewExitSet()
	set[models.TF3][models.ExitCE] = true

	fired, name := EvaluateExits(models.SideShort, 120, flatCandles(120, 100), spikeCandles(), set)
	if !fired {
		t.Fatal("expected the slow window to trigger")
	}
	if name != "TF3 CE" {
		t.Fatalf("expected TF3 CE, got %q", name)
	}
}

func TestEvaluateExitsSwingLowUsesTickerPrice(t *testing.T) {
	candles := flatCandles(120, 100)
	// Confirmed pivot low at 95 well inside the window.
	candles[60] = exchange.Kline{Open: 100, High: 100, Low: 95, Close: 100}

	set := models.NewExitSet()
	set[models.TF1][models.ExitSwingLow] = true

	// Last close is 100, but the live price already broke the pivot.
	fired, name := EvaluateExits(models.SideLong, 94, candles, nil, set)
	if !fired {
		t.Fatal("live price under the confirmed pivot low must fire for a long")
	}
	if name != "TF1 SwingLow" {
		t.Fatalf("expected TF1 SwingLow, got %q", name)
	}

	// Price above the pivot: condition holds even though the toggle is on.
	fired, _ = EvaluateExits(models.SideLong, 96, candles, nil, set)
	if fired {
		t.Fatal("price above the pivot low must not fire")
	}
}

func TestEvaluateExitsSwingHighShortOnly(t *testing.T) {
	candles := flatCandles(120, 100)
	candles[60] = exchange.Kline{Open: 100, High: 105, Low: 100, Close: 100}

	set := models.NewExitSet()
	set[models.TF1][models.ExitSwingHigh] = true

	fired, name := EvaluateExits(models.SideShort, 106, candles, nil, set)
	if !fired || name != "TF1 SwingHigh" {
		t.Fatalf("short above the confirmed pivot high must fire, got %v %q", fired, name)
	}

	// The same breach means nothing for a long.
	fired, _ = EvaluateExits(models.SideLong, 106, candles, nil, set)
	if fired {
		t.Fatal("swing-high breach must not close a long")
	}
}

func TestEvaluateExitsEMA26Long(t *testing.T) {
	// Downtrend: close finishes below its EMA26.
	candles := make([]exchange.Kline, 120)
	price := 200.0
	for i := range candles {
		candles[i] = exchange.Kline{Open: price, High: price, Low: price - 1, Close: price}
		if i > 100 {
			price -= 2
		}
	}

	set := models.NewExitSet()
	set[models.TF1][models.ExitEMA26] = true

	fired, name := EvaluateExits(models.SideLong, price, candles, nil, set)
	if !fired || name != "TF1 EMA26" {
		t.Fatalf("close under EMA26 must fire for a long, got %v %q", fired, name)
	}
}
