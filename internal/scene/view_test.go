package scene

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/model"
)

type fakeSurface struct {
	mu      sync.Mutex
	id      int
	drawErr error
	draws   int
	widths  []int
	closed  bool
}

func (f *fakeSurface) Draw(*Scene) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws++
	return f.drawErr
}

func (f *fakeSurface) Resize(w int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.widths = append(f.widths, w)
	}
	return nil
}

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSurface) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
	drawErr  error
}

func (ff *fakeFactory) new() (Surface, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	for _, s := range ff.surfaces {
		if !s.isClosed() {
			return nil, errors.New("previous surface still live")
		}
	}
	s := &fakeSurface{id: len(ff.surfaces), drawErr: ff.drawErr}
	ff.surfaces = append(ff.surfaces, s)
	return s, nil
}

func sceneOf(n int) *Scene {
	return Composer{}.Compose(testSeries(n), model.Anchors{A: model.Price(100, "")})
}

func TestView_ReleasesBeforeAcquire(t *testing.T) {
	ff := &fakeFactory{}
	v := NewView(ff.new, nil)

	require.NoError(t, v.Show(sceneOf(5)))
	require.NoError(t, v.Show(sceneOf(6)))
	require.Len(t, ff.surfaces, 2)
	assert.True(t, ff.surfaces[0].isClosed())
	assert.False(t, ff.surfaces[1].isClosed())
	assert.True(t, v.Active())
}

func TestView_EmptySceneReleases(t *testing.T) {
	ff := &fakeFactory{}
	v := NewView(ff.new, nil)

	require.NoError(t, v.Show(sceneOf(5)))
	require.NoError(t, v.Show(&Scene{}))
	assert.False(t, v.Active())
	assert.True(t, ff.surfaces[0].isClosed())

	require.NoError(t, v.Show(nil))
	assert.Len(t, ff.surfaces, 1)
}

func TestView_DrawErrorReleases(t *testing.T) {
	ff := &fakeFactory{drawErr: errors.New("boom")}
	r := make(chan int)
	v := NewView(ff.new, r)

	err := v.Show(sceneOf(5))
	assert.Error(t, err)
	assert.False(t, v.Active())
	assert.False(t, v.Listening())
	assert.True(t, ff.surfaces[0].isClosed())
}

func TestView_ResizeListenerLifecycle(t *testing.T) {
	ff := &fakeFactory{}
	r := make(chan int)
	v := NewView(ff.new, r)

	require.NoError(t, v.Show(sceneOf(5)))
	assert.True(t, v.Listening())

	r <- 640
	assert.Eventually(t, func() bool {
		s := ff.surfaces[0]
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.widths) == 1 && s.widths[0] == 640
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, v.Clear())
	assert.False(t, v.Listening())
	assert.False(t, v.Active())

	// nobody is listening anymore
	select {
	case r <- 800:
		t.Fatal("resize listener still attached")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestView_RequestResizeFollowsSurface(t *testing.T) {
	ff := &fakeFactory{}
	r := make(chan int, 1)
	v := NewView(ff.new, r)

	assert.ErrorIs(t, v.RequestResize(640), ErrNotListening)
	assert.Empty(t, r, "nothing is queued without a surface")

	require.NoError(t, v.Show(sceneOf(5)))
	require.NoError(t, v.RequestResize(640))
	assert.Eventually(t, func() bool {
		s := ff.surfaces[0]
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.widths) == 1
	}, time.Second, 5*time.Millisecond)

	// a width still queued when the surface goes away never reaches the next one
	r <- 900
	require.NoError(t, v.Clear())
	assert.Empty(t, r)
	assert.ErrorIs(t, v.RequestResize(800), ErrNotListening)

	require.NoError(t, v.Show(sceneOf(6)))
	time.Sleep(20 * time.Millisecond)
	s := ff.surfaces[1]
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.widths)
}

func TestView_CloseRefusesScenes(t *testing.T) {
	ff := &fakeFactory{}
	v := NewView(ff.new, make(chan int))
	require.NoError(t, v.Show(sceneOf(5)))
	require.NoError(t, v.Close())

	assert.True(t, ff.surfaces[0].isClosed())
	assert.False(t, v.Listening())
	assert.ErrorIs(t, v.Show(sceneOf(5)), ErrViewClosed)
}

func TestChartSurface_RendersPNGAndClears(t *testing.T) {
	frame := &Frame{}
	s := NewChartSurface(800, 400, frame)

	require.NoError(t, s.Draw(sceneOf(40)))
	png, ok := frame.Bytes()
	require.True(t, ok)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	require.NoError(t, s.Resize(1200))
	assert.Equal(t, 1200, s.Width())

	require.NoError(t, s.Close())
	_, ok = frame.Bytes()
	assert.False(t, ok)
	assert.Error(t, s.Draw(sceneOf(40)))
}

func TestRenderPNG(t *testing.T) {
	sc := Composer{}.Compose(testSeries(30), model.Anchors{
		A: model.Price(100, dayIndex(20)),
		B: model.Price(97, dayIndex(5)),
	})
	sc.Symbol = "2330.TW"
	png, err := RenderPNG(sc, 640, 320)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = RenderPNG(&Scene{}, 640, 320)
	assert.Error(t, err)
}

func TestView_SingleCandleStillDraws(t *testing.T) {
	frame := &Frame{}
	v := NewView(ChartSurfaceFactory(640, 320, frame), nil)

	sc := Composer{}.Compose(testSeries(1), model.Anchors{A: model.Price(100, dayIndex(0))})
	require.Empty(t, sc.Projection)
	require.NoError(t, v.Show(sc))
	assert.True(t, v.Active())
	png, ok := frame.Bytes()
	require.True(t, ok)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	sc.Interval = model.Interval5m
	png, err := RenderPNG(sc, 640, 320)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestRenderPNG_FlatSingleCandle(t *testing.T) {
	flat := model.MustSeries([]model.Candle{{Time: day0.Unix(), Open: 50, High: 50, Low: 50, Close: 50}})
	png, err := RenderPNG(Composer{}.Compose(flat, model.Anchors{}), 640, 320)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	sink := FileSink{Path: path}
	require.NoError(t, sink.Publish([]byte("x")))
	require.NoError(t, sink.Publish(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
