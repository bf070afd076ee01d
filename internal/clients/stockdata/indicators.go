package stockdata

import "math"

// sma returns the simple moving average of the last period closes, or nil
// when the series is too short.
func sma(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	avg := sum / float64(period)
	return &avg
}

// ema returns the exponential moving average of the last period closes.
func ema(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	series := emaSeries(closes, period)
	v := series[len(series)-1]
	return &v
}

// emaSeries computes the EMA over the whole series, seeded with the SMA of
// the first period values.
func emaSeries(closes []float64, period int) []float64 {
	k := 2.0 / float64(period+1)
	out := make([]float64, len(closes))
	seed := 0.0
	for _, c := range closes[:period] {
		seed += c
	}
	seed /= float64(period)
	out[period-1] = seed
	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	for i := 0; i < period-1; i++ {
		out[i] = seed
	}
	return out
}

// rsi returns the Wilder-smoothed relative strength index.
func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
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
		v := 100.0
		return &v
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return &v
}

// macd returns the MACD line (EMA12-EMA26) and its 9-period signal line.
func macd(closes []float64) (*float64, *float64) {
	if len(closes) < 35 {
		return nil, nil
	}

	fast := emaSeries(closes, 12)
	slow := emaSeries(closes, 26)
	line := make([]float64, 0, len(closes)-25)
	for i := 25; i < len(closes); i++ {
		line = append(line, fast[i]-slow[i])
	}

	signal := emaSeries(line, 9)
	m := line[len(line)-1]
	s := signal[len(signal)-1]
	return &m, &s
}

// bollinger returns the upper and lower bands at width standard deviations
// around the period SMA.
func bollinger(closes []float64, period int, width float64) (*float64, *float64) {
	mid := sma(closes, period)
	if mid == nil {
		return nil, nil
	}

	variance := 0.0
	for _, c := range closes[len(closes)-period:] {
		d := c - *mid
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(period))

	upper := *mid + width*stddev
	lower := *mid - width*stddev
	return &upper, &lower
}
