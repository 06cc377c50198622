// Package scene composes candles, the projected path, the neckline and the
// A/B/C markers into one renderable description, and owns the lifecycle of
// the surface that draws it.
package scene

import (
	"sort"

	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/align"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/projection"
)

var log = logrus.WithField("component", "scene")

// MarkerKind identifies which anchor a marker annotates.
type MarkerKind string

const (
	MarkerSupport   MarkerKind = "support"
	MarkerBreakdown MarkerKind = "breakdown"
	MarkerRetest    MarkerKind = "retest"
)

// Marker is a point annotation pinned to a candle.
type Marker struct {
	Time     int64      `json:"time"`
	Kind     MarkerKind `json:"kind"`
	Label    string     `json:"text"`
	Color    string     `json:"color"`
	Position string     `json:"position"`
	Shape    string     `json:"shape"`
	Price    float64    `json:"price"` // low of the pinned candle
}

// PriceLine is a horizontal reference level.
type PriceLine struct {
	Price float64 `json:"price"`
	Title string  `json:"title"`
	Color string  `json:"color"`
}

// Scene is everything the rendering surface needs for one result.
// Markers are sorted by ascending time.
type Scene struct {
	Symbol     string             `json:"symbol"`
	Interval   model.Interval     `json:"interval"`
	Candles    []model.Candle     `json:"candles"`
	Projection []projection.Point `json:"projection,omitempty"`
	Neckline   *PriceLine         `json:"neckline,omitempty"`
	Markers    []Marker           `json:"markers,omitempty"`
}

const (
	ColorSupport    = "#34d399"
	ColorBreakdown  = "#f87171"
	ColorRetest     = "#fbbf24"
	ColorProjection = "#a855f7"
)

type markerStyle struct {
	kind  MarkerKind
	label string
	color string
}

var (
	styleA = markerStyle{MarkerSupport, "A: 頸線", ColorSupport}
	styleB = markerStyle{MarkerBreakdown, "B: 破位", ColorBreakdown}
	styleC = markerStyle{MarkerRetest, "C: 買點/回測", ColorRetest}
)

// Composer builds scenes. Its resolver decides how anchor indexes are read.
type Composer struct {
	Resolver align.Resolver
}

// Compose rebuilds the whole scene from scratch; nothing is carried over
// from a previous composition.
func (c Composer) Compose(series model.Series, anchors model.Anchors) *Scene {
	candles := series.Candles()
	sc := &Scene{Candles: candles}

	sc.Projection = projection.Project(series, anchors.A, anchors.B)
	if level, ok := projection.Neckline(anchors.A); ok {
		sc.Neckline = &PriceLine{Price: level, Title: "Neckline (A)", Color: ColorSupport}
	}

	for _, m := range []struct {
		anchor model.Anchor
		style  markerStyle
	}{
		{anchors.A, styleA},
		{anchors.B, styleB},
		{anchors.C, styleC},
	} {
		if marker, ok := c.marker(m.anchor, m.style, candles); ok {
			sc.Markers = append(sc.Markers, marker)
		}
	}
	sort.SliceStable(sc.Markers, func(i, j int) bool { return sc.Markers[i].Time < sc.Markers[j].Time })
	return sc
}

// ComposeResult composes the scene of an analysis result. A nil result has no scene.
func (c Composer) ComposeResult(r *model.AnalysisResult) *Scene {
	if r == nil {
		return nil
	}
	sc := c.Compose(r.Candles, r.Anchors)
	sc.Symbol = r.Symbol
	sc.Interval = r.Interval.OrDefault()
	return sc
}

func (c Composer) marker(a model.Anchor, style markerStyle, candles []model.Candle) (Marker, bool) {
	t, ok := c.Resolver.Resolve(a.Index, candles)
	if !ok {
		if a.Index != "" {
			log.Debugf("anchor %s index %q not matched to any candle, marker omitted", style.kind, a.Index)
		}
		return Marker{}, false
	}
	m := Marker{
		Time:     t,
		Kind:     style.kind,
		Label:    style.label,
		Color:    style.color,
		Position: "belowBar",
		Shape:    "arrowUp",
	}
	for _, cd := range candles {
		if cd.Time == t {
			m.Price = cd.Low
			break
		}
	}
	return m, true
}
