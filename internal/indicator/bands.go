package indicator

import "math"

// Bollinger returns upper, middle and lower bands. The middle band is the SMA
// and the bands sit k population standard deviations away from it.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower []Value) {
	upper = make([]Value, len(closes))
	lower = make([]Value, len(closes))
	middle = SMA(closes, period)
	for i, m := range middle {
		if !m.Ready {
			continue
		}
		var sq float64
		for _, v := range closes[i-period+1 : i+1] {
			d := v - m.V
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))
		upper[i] = ready(m.V + k*sd)
		lower[i] = ready(m.V - k*sd)
	}
	return upper, middle, lower
}

// MACD returns the fast-minus-slow EMA line and its signal EMA.
func MACD(closes []float64, fast, slow, signalPeriod int) (line, sig []Value) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	line = make([]Value, len(closes))
	for i := range closes {
		if fastEMA[i].Ready && slowEMA[i].Ready {
			line[i] = ready(fastEMA[i].V - slowEMA[i].V)
		}
	}
	return line, emaOf(line, signalPeriod)
}
