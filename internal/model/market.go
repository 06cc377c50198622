package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candle represents a single candlestick bar as returned by the analysis backend.
type Candle struct {
	Time  int64   `json:"time"` // seconds since epoch
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// At returns the candle open time.
func (c Candle) At() time.Time { return time.Unix(c.Time, 0) }

// Series is a validated, strictly time-ordered candle sequence.
// It is never mutated after construction.
type Series struct {
	candles []Candle
}

// NewSeries validates that candle times are strictly increasing.
func NewSeries(candles []Candle) (Series, error) {
	for i := 1; i < len(candles); i++ {
		if candles[i].Time <= candles[i-1].Time {
			return Series{}, fmt.Errorf("candle %d: time %d not after %d", i, candles[i].Time, candles[i-1].Time)
		}
	}
	cp := make([]Candle, len(candles))
	copy(cp, candles)
	return Series{candles: cp}, nil
}

// MustSeries is NewSeries for literals known to be ordered.
func MustSeries(candles []Candle) Series {
	s, err := NewSeries(candles)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Series) Len() int { return len(s.candles) }

// Candles returns a copy of the underlying candles.
func (s Series) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Last returns the most recent candle.
func (s Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Step returns the nominal inter-candle interval in seconds, taken from the
// first two candles. It is not re-validated for later pairs, so gaps
// (weekends, lunch breaks) do not change it.
func (s Series) Step() (int64, bool) {
	if len(s.candles) < 2 {
		return 0, false
	}
	return s.candles[1].Time - s.candles[0].Time, true
}

func (s Series) MarshalJSON() ([]byte, error) {
	if s.candles == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.candles)
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return err
	}
	parsed, err := NewSeries(candles)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
