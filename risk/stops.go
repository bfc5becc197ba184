package risk

import "math"

// StopMode selects how the protective stop is derived.
type StopMode string

const (
	// StopATR places the stop k average-true-ranges below entry.
	StopATR StopMode = "atr"
	// StopSwingLow places the stop at the lowest of the recent lows.
	StopSwingLow StopMode = "swing-low"
)

// StopInputs collects the parameters for ComputeStopTarget. ATR and K are
// used in StopATR mode, Lows in StopSwingLow mode. RR applies to both.
type StopInputs struct {
	Mode StopMode
	ATR  float64
	K    float64
	Lows []float64
	RR   float64
}

// StopTarget is a stop/take-profit bracket around a long entry.
type StopTarget struct {
	Stop       float64
	TakeProfit float64
}

// ComputeStopTarget derives the protective stop and the take-profit for a
// long entry. The take-profit sits RR times the stop distance above entry.
func ComputeStopTarget(entryPrice float64, in StopInputs) (StopTarget, error) {
	if in.RR < 0 {
		return StopTarget{}, ErrInvalidConfig
	}

	var stop float64
	switch in.Mode {
	case StopATR:
		stop = math.Max(0, entryPrice-in.K*in.ATR)
	case StopSwingLow:
		if len(in.Lows) < 1 {
			return StopTarget{}, ErrInsufficientData
		}
		stop = in.Lows[0]
		for _, l := range in.Lows[1:] {
			if l < stop {
				stop = l
			}
		}
	default:
		return StopTarget{}, ErrInvalidConfig
	}

	if stop >= entryPrice {
		return StopTarget{}, ErrInvalidStop
	}

	return StopTarget{
		Stop:       stop,
		TakeProfit: entryPrice + in.RR*(entryPrice-stop),
	}, nil
}
