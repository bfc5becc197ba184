package indicators

import "fmt"

// EMA calculates the Exponential Moving Average of the series for the given
// period. The first value is seeded with an SMA of the first period samples.
func EMA(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(series) < period {
		return 0, fmt.Errorf("not enough samples: need %d, got %d", period, len(series))
	}

	multiplier := 2.0 / float64(period+1)

	// Start with SMA for the first value
	sma := 0.0
	for i := 0; i < period; i++ {
		sma += series[i]
	}
	ema := sma / float64(period)

	for i := period; i < len(series); i++ {
		ema = (series[i]-ema)*multiplier + ema
	}
	return ema, nil
}

// SMA calculates the Simple Moving Average over the last period samples.
func SMA(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(series) < period {
		return 0, fmt.Errorf("not enough samples: need %d, got %d", period, len(series))
	}

	sum := 0.0
	for i := len(series) - period; i < len(series); i++ {
		sum += series[i]
	}
	return sum / float64(period), nil
}
