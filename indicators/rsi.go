package indicators

import "fmt"

// RSI calculates Wilder's Relative Strength Index over the series for the
// given period, smoothing gains and losses with alpha = 1/period.
func RSI(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(series) < period+1 {
		return 0, fmt.Errorf("not enough samples: need %d, got %d", period+1, len(series))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder
	for i := period + 1; i < len(series); i++ {
		delta := series[i] - series[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
