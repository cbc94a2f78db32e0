package models

// TimeFrame of an exit-condition observation window. TF1 is the fast (1m)
// window and is always evaluated before TF3, the slow (3m) window.
type TimeFrame string

const (
	TF1 TimeFrame = "TF1"
	TF3 TimeFrame = "TF3"
)

// Exit condition names. TF1 carries the full set, TF3 a reduced one.
const (
	ExitATR       = "ATR"
	ExitCE        = "CE"
	ExitEMA13     = "EMA13"
	ExitEMA26     = "EMA26"
	ExitSwingHigh = "SwingHigh"
	ExitSwingLow  = "SwingLow"
)

// ExitSet holds the per-window boolean toggles for one instrument.
// Toggles may be flipped while flat; they simply have no effect until a
// position exists.
type ExitSet map[TimeFrame]map[string]bool

// NewExitSet returns the default (all-off) toggle set
func NewExitSet() ExitSet {
	return ExitSet{
		TF1: {
			ExitATR:       false,
			ExitCE:        false,
			ExitEMA13:     false,
			ExitEMA26:     false,
			ExitSwingHigh: false,
			ExitSwingLow:  false,
		},
		TF3: {
			ExitATR:   false,
			ExitCE:    false,
			ExitEMA26: false,
		},
	}
}

// AnyEnabled reports whether at least one toggle is on
func (s ExitSet) AnyEnabled() bool {
	for _, conds := range s {
		for _, on := range conds {
			if on {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy, safe to read outside the ledger lock
func (s ExitSet) Clone() ExitSet {
	out := make(ExitSet, len(s))
	for tf, conds := range s {
		m := make(map[string]bool, len(conds))
		for k, v := range conds {
			m[k] = v
		}
		out[tf] = m
	}
	return out
}
