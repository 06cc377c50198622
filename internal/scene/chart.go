package scene

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"PatternSentinel/internal/model"
)

// Sink receives rendered PNG frames. A nil frame means the surface was released.
type Sink interface {
	Publish(png []byte) error
}

// Frame keeps the latest frame in memory for the dashboard.
type Frame struct {
	mu        sync.RWMutex
	data      []byte
	updatedAt time.Time
}

func (f *Frame) Publish(png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if png == nil {
		f.data = nil
	} else {
		f.data = append([]byte(nil), png...)
	}
	f.updatedAt = time.Now()
	return nil
}

// Bytes returns the current frame, if any.
func (f *Frame) Bytes() ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.data == nil {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

// FileSink writes each frame to Path. Releasing leaves the last file in place.
type FileSink struct {
	Path string
}

func (s FileSink) Publish(png []byte) error {
	if png == nil {
		return nil
	}
	if err := os.WriteFile(s.Path, png, 0644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

var errSurfaceClosed = errors.New("surface closed")

// ChartSurface renders scenes to PNG with go-chart.
type ChartSurface struct {
	mu     sync.Mutex
	width  int
	height int
	sink   Sink
	scene  *Scene
	closed bool
}

// NewChartSurface creates a surface publishing to sink.
func NewChartSurface(width, height int, sink Sink) *ChartSurface {
	return &ChartSurface{width: width, height: height, sink: sink}
}

// ChartSurfaceFactory returns a factory for View.
func ChartSurfaceFactory(width, height int, sink Sink) SurfaceFactory {
	return func() (Surface, error) {
		return NewChartSurface(width, height, sink), nil
	}
}

func (s *ChartSurface) Draw(sc *Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSurfaceClosed
	}
	if sc == nil || len(sc.Candles) == 0 {
		return errors.New("scene has no candles")
	}
	s.scene = sc
	return s.renderLocked()
}

// Resize changes the width and redraws the current scene.
func (s *ChartSurface) Resize(width int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || width <= 0 || width == s.width {
		return nil
	}
	s.width = width
	if s.scene == nil {
		return nil
	}
	return s.renderLocked()
}

func (s *ChartSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.scene = nil
	return s.sink.Publish(nil)
}

// Width is the current render width.
func (s *ChartSurface) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

func (s *ChartSurface) renderLocked() error {
	graph := buildChart(s.scene, s.width, s.height)
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return s.sink.Publish(buf.Bytes())
}

// RenderPNG draws sc once on a throwaway surface.
func RenderPNG(sc *Scene, width, height int) ([]byte, error) {
	frame := &Frame{}
	s := NewChartSurface(width, height, frame)
	if err := s.Draw(sc); err != nil {
		_ = s.Close()
		return nil, err
	}
	png, _ := frame.Bytes()
	if err := s.Close(); err != nil {
		return nil, err
	}
	return png, nil
}

func unixToFloat(sec int64) float64 {
	return float64(time.Unix(sec, 0).UnixNano())
}

func buildChart(sc *Scene, width, height int) *chart.Chart {
	n := len(sc.Candles)
	xs := make([]time.Time, n)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range sc.Candles {
		xs[i] = time.Unix(c.Time, 0)
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "high",
			XValues: xs,
			YValues: highs,
			Style:   chart.Style{StrokeColor: drawing.ColorFromHex("26a69a").WithAlpha(80), StrokeWidth: 1},
		},
		chart.TimeSeries{
			Name:    "low",
			XValues: xs,
			YValues: lows,
			Style:   chart.Style{StrokeColor: drawing.ColorFromHex("ef5350").WithAlpha(80), StrokeWidth: 1},
		},
		chart.TimeSeries{
			Name:    sc.Symbol,
			XValues: xs,
			YValues: closes,
			Style:   chart.Style{StrokeColor: drawing.ColorFromHex("cbd5e1"), StrokeWidth: 1.5},
		},
	}

	lastX := sc.Candles[n-1].Time
	if len(sc.Projection) > 0 {
		px := make([]time.Time, len(sc.Projection))
		py := make([]float64, len(sc.Projection))
		for i, p := range sc.Projection {
			px[i] = time.Unix(p.Time, 0)
			py[i] = p.Value
		}
		lastX = sc.Projection[len(sc.Projection)-1].Time
		series = append(series, chart.TimeSeries{
			Name:    "預測路徑",
			XValues: px,
			YValues: py,
			Style: chart.Style{
				StrokeColor:     hexColor(ColorProjection),
				StrokeWidth:     2,
				StrokeDashArray: []float64{6, 4},
			},
		})
	}

	if sc.Neckline != nil {
		series = append(series, chart.TimeSeries{
			Name:    sc.Neckline.Title,
			XValues: []time.Time{xs[0], time.Unix(lastX, 0)},
			YValues: []float64{sc.Neckline.Price, sc.Neckline.Price},
			Style:   chart.Style{StrokeColor: hexColor(sc.Neckline.Color), StrokeWidth: 2},
		})
	}

	if len(sc.Markers) > 0 {
		annotations := make([]chart.Value2, 0, len(sc.Markers))
		for _, m := range sc.Markers {
			annotations = append(annotations, chart.Value2{
				XValue: unixToFloat(m.Time),
				YValue: m.Price,
				Label:  m.Label,
				Style:  chart.Style{StrokeColor: hexColor(m.Color)},
			})
		}
		series = append(series, chart.AnnotationSeries{Name: "markers", Annotations: annotations})
	}

	formatter := chart.TimeDateValueFormatter
	if sc.Interval.Intraday() {
		formatter = chart.TimeMinuteValueFormatter
	}

	graph := &chart.Chart{
		Title:  fmt.Sprintf("%s (%s)", sc.Symbol, sc.Interval.OrDefault()),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{ValueFormatter: formatter},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if vf, isFloat := v.(float64); isFloat {
					return fmt.Sprintf("%.2f", vf)
				}
				return ""
			},
		},
		Series: series,
	}

	// go-chart refuses a zero-width axis; a single candle gets half a step
	// of room on each side.
	if lastX == sc.Candles[0].Time {
		pad := float64(halfStep(sc.Interval))
		x := unixToFloat(lastX)
		graph.XAxis.Range = &chart.ContinuousRange{Min: x - pad, Max: x + pad}
	}
	if lo, hi := priceBounds(sc); lo == hi {
		pad := math.Max(math.Abs(lo)*0.01, 1)
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(graph)}
	return graph
}

func halfStep(interval model.Interval) time.Duration {
	switch interval {
	case model.IntervalHourly:
		return 30 * time.Minute
	case model.Interval5m:
		return 150 * time.Second
	}
	return 12 * time.Hour
}

// priceBounds spans every price the chart plots.
func priceBounds(sc *Scene) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	add := func(v float64) {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for _, c := range sc.Candles {
		add(c.Low)
		add(c.High)
		add(c.Close)
	}
	for _, p := range sc.Projection {
		add(p.Value)
	}
	if sc.Neckline != nil {
		add(sc.Neckline.Price)
	}
	for _, m := range sc.Markers {
		add(m.Price)
	}
	return lo, hi
}

func hexColor(s string) drawing.Color {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	return drawing.ColorFromHex(s)
}
