package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// AnchorIndex is the backend's date/time-like identifier of an anchor bar.
// The backend emits stringified timestamps ("2024-05-13 00:00:00+08:00"),
// date-only strings, epoch numbers or null; all are kept as text here and
// interpreted by the align package.
type AnchorIndex string

func (i *AnchorIndex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = AnchorIndex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*i = AnchorIndex(n.String())
	return nil
}

// IndexFromUnix builds an index from epoch seconds.
func IndexFromUnix(sec int64) AnchorIndex {
	return AnchorIndex(strconv.FormatInt(sec, 10))
}

// Anchor is a labeled pattern point: a price level and the bar it was taken from.
type Anchor struct {
	Value *float64    `json:"value,omitempty"`
	Index AnchorIndex `json:"index,omitempty"`
}

// Price builds an anchor with a value and index.
func Price(v float64, idx AnchorIndex) Anchor {
	return Anchor{Value: &v, Index: idx}
}

// Present reports whether the anchor carries a usable price.
// Zero and NaN count as absent, matching how the backend signals "no level".
func (a Anchor) Present() bool {
	return a.Value != nil && *a.Value != 0 && !math.IsNaN(*a.Value) && !math.IsInf(*a.Value, 0)
}

// Price returns the anchor value, or 0 when absent.
func (a Anchor) Price() float64 {
	if !a.Present() {
		return 0
	}
	return *a.Value
}

// Anchors holds the A (neckline), B (breakdown) and C (retest) points.
type Anchors struct {
	A Anchor `json:"a"`
	B Anchor `json:"b"`
	C Anchor `json:"c"`
}
