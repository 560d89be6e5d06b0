package indicator

// EMA computes the exponential moving average of values.
// The first reading is the simple average of the first period values.
func EMA(values []float64, period int) []Value {
	in := make([]Value, len(values))
	for i, v := range values {
		in[i] = ready(v)
	}
	return emaOf(in, period)
}

// emaOf skips leading unavailable inputs and seeds with their first SMA.
func emaOf(values []Value, period int) []Value {
	out := make([]Value, len(values))
	if period <= 0 {
		return out
	}
	multiplier := 2.0 / float64(period+1)

	var (
		count   int
		sum     float64
		current float64
	)
	for i, v := range values {
		if !v.Ready {
			continue
		}
		count++
		if count <= period {
			sum += v.V
			if count == period {
				current = sum / float64(period)
				out[i] = ready(current)
			}
			continue
		}
		current = v.V*multiplier + current*(1-multiplier)
		out[i] = ready(current)
	}
	return out
}

// SMA computes the simple moving average over a rolling window.
func SMA(values []float64, period int) []Value {
	out := make([]Value, len(values))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = ready(sum / float64(period))
		}
	}
	return out
}
