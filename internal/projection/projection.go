// Package projection synthesizes the illustrative post-pattern price path
// drawn after the last candle. It is a fixed rule set, not a forecast.
package projection

import "PatternSentinel/internal/model"

// Point is one vertex of the projected path.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// DefaultDepthRatio estimates breakdown depth as a fraction of A when B is absent.
const DefaultDepthRatio = 0.015

// leg is a path vertex expressed as a step offset and a price rule.
type leg struct {
	Name   string
	Offset int64
	Value  func(a, depth float64) float64
}

// legs after the starting (lastClose) vertex.
var legs = []leg{
	{"symmetrical peak", 8, func(a, depth float64) float64 { return a + depth }},
	{"initial retest", 16, func(a, _ float64) float64 { return a }},
	{"minor bounce", 22, func(a, _ float64) float64 { return a * 1.006 }},
	{"shakeout low", 28, func(a, depth float64) float64 { return a - depth*0.5 }},
	{"final stabilization", 36, func(a, _ float64) float64 { return a * 1.002 }},
}

// Depth returns the breakdown depth of the pattern: A-B when B is present,
// otherwise 1.5% of A.
func Depth(a, b model.Anchor) float64 {
	if b.Present() {
		return a.Price() - b.Price()
	}
	return a.Price() * DefaultDepthRatio
}

// Path projects six points forward from last at multiples of step.
// It returns nil when A is absent or step is not positive. C never
// influences the shape.
func Path(last model.Candle, step int64, a, b model.Anchor) []Point {
	if !a.Present() || step <= 0 {
		return nil
	}
	av := a.Price()
	depth := Depth(a, b)

	points := make([]Point, 0, len(legs)+1)
	points = append(points, Point{Time: last.Time, Value: last.Close})
	for _, l := range legs {
		points = append(points, Point{
			Time:  last.Time + step*l.Offset,
			Value: l.Value(av, depth),
		})
	}
	return points
}

// Project derives the step and last candle from series and calls Path.
// Series with fewer than two candles have no step and yield nil.
func Project(series model.Series, a, b model.Anchor) []Point {
	step, ok := series.Step()
	if !ok {
		return nil
	}
	last, _ := series.Last()
	return Path(last, step, a, b)
}

// Neckline returns the support level drawn as a horizontal reference line.
func Neckline(a model.Anchor) (float64, bool) {
	if !a.Present() {
		return 0, false
	}
	return a.Price(), true
}
