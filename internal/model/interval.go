package model

import "fmt"

// Interval selects both the backend candle sampling and the chart display mode.
type Interval string

const (
	IntervalDaily  Interval = "1d"
	IntervalHourly Interval = "60m"
	Interval5m     Interval = "5m"
)

// Intervals lists every recognized interval in display order.
var Intervals = []Interval{IntervalDaily, IntervalHourly, Interval5m}

// Validate checks that the interval is one the backend understands.
func (i Interval) Validate() error {
	switch i {
	case IntervalDaily, IntervalHourly, Interval5m:
		return nil
	}
	return fmt.Errorf("unsupported interval %q", string(i))
}

// Intraday reports whether candles are sampled below one day.
func (i Interval) Intraday() bool {
	return i == IntervalHourly || i == Interval5m
}

// OrDefault returns the daily interval for an empty value.
func (i Interval) OrDefault() Interval {
	if i == "" {
		return IntervalDaily
	}
	return i
}

// DefaultLookback is the number of trailing candles examined when none is chosen.
const DefaultLookback = 120

// Lookbacks lists the recognized lookback windows.
var Lookbacks = []int{60, 120, 200, 500}

// ValidateLookback checks that n is a recognized lookback window.
func ValidateLookback(n int) error {
	for _, l := range Lookbacks {
		if l == n {
			return nil
		}
	}
	return fmt.Errorf("unsupported lookback %d (want one of %v)", n, Lookbacks)
}
