// Package align maps backend anchor indexes onto the candle time axis.
package align

import (
	"math"
	"strconv"
	"strings"
	"time"

	"PatternSentinel/internal/model"
)

// DefaultTolerance is the maximum distance, in seconds, between an anchor
// timestamp and the candle it snaps to. It is strictly smaller than the
// daily interval and absorbs intraday sampling offsets.
const DefaultTolerance int64 = 3600

// sentinels are the "no value" spellings the backend leaks from pandas/Python.
var sentinels = map[string]bool{
	"":     true,
	"none": true,
	"null": true,
	"nan":  true,
	"nat":  true,
}

// layouts are tried in order. Inputs may carry fractional seconds even when
// the layout does not.
var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Resolver snaps anchor indexes to candle times. The zero value interprets
// naive timestamps as UTC and uses DefaultTolerance.
type Resolver struct {
	Location  *time.Location
	Tolerance int64
}

// Resolve snaps idx onto candles with the zero-value Resolver.
func Resolve(idx model.AnchorIndex, candles []model.Candle) (int64, bool) {
	return Resolver{}.Resolve(idx, candles)
}

// Resolve returns the time of the first candle lying strictly within the
// tolerance of idx. Unparseable or sentinel indexes resolve to nothing.
func (r Resolver) Resolve(idx model.AnchorIndex, candles []model.Candle) (int64, bool) {
	target, ok := r.Parse(idx)
	if !ok {
		return 0, false
	}
	tol := r.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	for _, c := range candles {
		d := c.Time - target
		if d < 0 {
			d = -d
		}
		if d < tol {
			return c.Time, true
		}
	}
	return 0, false
}

// Parse converts idx to epoch seconds.
func (r Resolver) Parse(idx model.AnchorIndex) (int64, bool) {
	s := strings.TrimSpace(string(idx))
	if sentinels[strings.ToLower(s)] {
		return 0, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		// epoch milliseconds from JS-style producers
		if f >= 1e12 || f <= -1e12 {
			f /= 1000
		}
		return int64(f), true
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}
