package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/backend"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/prefs"
	"PatternSentinel/internal/scene"
	"PatternSentinel/internal/strategy"
)

type fakeBackend struct {
	mu       sync.Mutex
	startErr error
	status   *model.JobStatus
	checks   []backend.CheckRequest

	// gates holds per-symbol channels a check waits on before replying
	gates   map[string]chan struct{}
	replies map[string]*model.AnalysisResult
	errs    map[string]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		status:  &model.JobStatus{State: model.JobRunning},
		gates:   map[string]chan struct{}{},
		replies: map[string]*model.AnalysisResult{},
		errs:    map[string]error{},
	}
}

func (f *fakeBackend) StartScan(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startErr
}

func (f *fakeBackend) JobStatus(context.Context) (*model.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := *f.status
	return &st, nil
}

func (f *fakeBackend) setStatus(st *model.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeBackend) CheckSymbol(ctx context.Context, req backend.CheckRequest) (*model.AnalysisResult, error) {
	f.mu.Lock()
	f.checks = append(f.checks, req)
	gate := f.gates[req.Symbol]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[req.Symbol]; err != nil {
		return nil, err
	}
	if r, ok := f.replies[req.Symbol]; ok {
		cp := *r
		return &cp, nil
	}
	return &model.AnalysisResult{Symbol: req.Symbol, Interval: req.Interval, Lookback: req.Lookback, Candles: series(10)}, nil
}

type nopQuotes struct{}

func (nopQuotes) Name() string { return "nop" }
func (nopQuotes) Quotes(_ context.Context, symbols []string) (*model.QuoteSet, error) {
	return &model.QuoteSet{Symbols: symbols, Quotes: map[string]model.Quote{}}, nil
}

type countingSurface struct {
	mu     sync.Mutex
	live   *int
	closed bool
}

func (c *countingSurface) Draw(*scene.Scene) error { return nil }
func (c *countingSurface) Resize(int) error        { return nil }

func (c *countingSurface) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		*c.live--
	}
	return nil
}

func series(n int) model.Series {
	candles := make([]model.Candle, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = model.Candle{Time: t0.AddDate(0, 0, i).Unix(), Open: 10, High: 11, Low: 9, Close: 10}
	}
	return model.MustSeries(candles)
}

func newTestSession(t *testing.T, be *fakeBackend) (*Session, *int) {
	t.Helper()
	pm, err := prefs.NewManager("", []string{"^TWII"})
	require.NoError(t, err)

	live := new(int)
	var mu sync.Mutex
	view := scene.NewView(func() (scene.Surface, error) {
		mu.Lock()
		defer mu.Unlock()
		*live++
		return &countingSurface{live: live}, nil
	}, nil)

	s := New(Options{
		Backend:       be,
		Quotes:        nopQuotes{},
		Prefs:         pm,
		View:          view,
		PollInterval:  2 * time.Millisecond,
		QuoteInterval: time.Hour,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, live
}

func TestSession_ManualCheckLabels(t *testing.T) {
	be := newFakeBackend()
	be.replies["2330.TW"] = &model.AnalysisResult{Symbol: "2330.TW", Passed: true, StatusLabel: "觀察", Candles: series(5)}
	be.replies["2317.TW"] = &model.AnalysisResult{Symbol: "2317.TW", Candles: series(5)}
	s, live := newTestSession(t, be)

	res, err := s.CheckSymbol(context.Background(), "2330", 0)
	require.NoError(t, err)
	assert.Equal(t, strategy.PassedLabel, res.StatusLabel)
	assert.Equal(t, model.DefaultLookback, be.checks[0].Lookback)
	assert.Empty(t, be.checks[0].Interval)
	assert.Equal(t, 1, *live)

	res, err = s.CheckSymbol(context.Background(), "2317.TW", 60)
	require.NoError(t, err)
	assert.Equal(t, strategy.NotPassedLabel, res.StatusLabel)
	assert.Equal(t, 1, *live, "previous surface released before the next one")
	require.NotNil(t, s.Scene())
	assert.Equal(t, "2317.TW", s.Scene().Symbol)
}

func TestSession_RecheckPassesStatusThrough(t *testing.T) {
	be := newFakeBackend()
	be.replies["2330.TW"] = &model.AnalysisResult{Symbol: "2330.TW", Passed: true, StatusLabel: "強烈買點", Candles: series(5)}
	s, _ := newTestSession(t, be)

	_, err := s.CheckSymbol(context.Background(), "2330.TW", 0)
	require.NoError(t, err)

	res, err := s.Recheck(context.Background(), "", model.IntervalHourly, 200)
	require.NoError(t, err)
	assert.Equal(t, "強烈買點", res.StatusLabel)
	assert.Equal(t, backend.CheckRequest{Symbol: "2330.TW", Interval: model.IntervalHourly, Lookback: 200}, be.checks[1])

	_, err = s.Recheck(context.Background(), "2330.TW", "15m", 120)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = s.Recheck(context.Background(), "2330.TW", model.IntervalDaily, 90)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Len(t, be.checks, 2, "invalid requests never reach the backend")
}

func TestSession_CheckFailureBanners(t *testing.T) {
	be := newFakeBackend()
	be.errs["XXXX"] = &backend.RemoteError{Message: "No data for XXXX"}
	be.errs["DOWN"] = errors.New("connection refused")
	s, live := newTestSession(t, be)

	_, err := s.CheckSymbol(context.Background(), "2330.TW", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, *live)

	_, err = s.Recheck(context.Background(), "XXXX", model.IntervalDaily, 120)
	require.Error(t, err)
	st := s.State()
	assert.Equal(t, "No data for XXXX", st.Banner)
	assert.Nil(t, st.Result)
	assert.Equal(t, 0, *live, "surface released when the result goes away")

	_, err = s.CheckSymbol(context.Background(), "DOWN", 0)
	require.Error(t, err)
	assert.Equal(t, "查詢失敗: connection refused", s.State().Banner)

	_, err = s.CheckSymbol(context.Background(), "2330.TW", 0)
	require.NoError(t, err)
	assert.Empty(t, s.State().Banner, "a new check clears the banner")
}

func TestSession_StaleCheckDiscarded(t *testing.T) {
	be := newFakeBackend()
	slow := make(chan struct{})
	be.gates["SLOW"] = slow
	s, _ := newTestSession(t, be)

	errc := make(chan error, 1)
	go func() {
		_, err := s.CheckSymbol(context.Background(), "SLOW", 0)
		errc <- err
	}()
	assert.Eventually(t, func() bool {
		be.mu.Lock()
		defer be.mu.Unlock()
		return len(be.checks) == 1
	}, time.Second, time.Millisecond)

	_, err := s.CheckSymbol(context.Background(), "FAST", 0)
	require.NoError(t, err)
	close(slow)

	assert.ErrorIs(t, <-errc, ErrStaleCheck)
	st := s.State()
	require.NotNil(t, st.Result)
	assert.Equal(t, "FAST", st.Result.Symbol)
	assert.False(t, st.Loading)
}

func TestSession_ScanLifecycle(t *testing.T) {
	be := newFakeBackend()
	s, live := newTestSession(t, be)

	var mu sync.Mutex
	var finished []model.AnalysisJob
	s.OnScanFinished(func(j model.AnalysisJob) {
		mu.Lock()
		finished = append(finished, j)
		mu.Unlock()
	})

	_, err := s.CheckSymbol(context.Background(), "2330.TW", 0)
	require.NoError(t, err)

	require.NoError(t, s.StartScan(context.Background(), true))
	st := s.State()
	assert.Nil(t, st.Result, "starting a scan clears the displayed result")
	assert.Equal(t, 0, *live)
	assert.True(t, st.Loading)

	be.setStatus(&model.JobStatus{State: model.JobCompleted, ResultList: []model.ScanPick{
		{Symbol: "2330.TW", StatusLabel: "強烈買點"},
		{Symbol: "2317.TW", StatusLabel: "觀察"},
	}})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := s.WaitScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.State)

	assert.Len(t, s.Picks(""), 2)
	assert.Len(t, s.Picks("strong"), 1)
	assert.Len(t, s.Picks("observe"), 1)

	_, err = s.SetFilter("STRONG")
	require.NoError(t, err)
	assert.Len(t, s.Picks(""), 1)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1
	}, time.Second, time.Millisecond)
	assert.False(t, s.State().Loading)
}

func TestSession_ScanStartFailure(t *testing.T) {
	be := newFakeBackend()
	be.startErr = errors.New("dial tcp: refused")
	s, _ := newTestSession(t, be)

	require.Error(t, s.StartScan(context.Background(), false))
	st := s.State()
	assert.Equal(t, model.JobError, st.Job.State)
	assert.Contains(t, st.Banner, "Unable to connect")
	assert.Nil(t, s.Picks(""))
}

func TestSession_ScanRemoteError(t *testing.T) {
	be := newFakeBackend()
	be.status = &model.JobStatus{State: model.JobError, ErrorText: "yfinance timeout"}
	s, _ := newTestSession(t, be)

	require.NoError(t, s.StartScan(context.Background(), false))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.WaitScan(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return s.State().Banner == "Analysis Failed: yfinance timeout"
	}, time.Second, time.Millisecond)
}

func TestSession_SetQuoteSymbols(t *testing.T) {
	be := newFakeBackend()
	s, _ := newTestSession(t, be)
	s.Start(context.Background())

	require.NoError(t, s.SetQuoteSymbols(context.Background(), []string{"NQ=F"}))
	assert.Equal(t, []string{"NQ=F"}, s.QuoteSymbols())
	assert.Equal(t, []string{"NQ=F"}, s.prefs.Get().QuoteSymbols)
	assert.Error(t, s.SetQuoteSymbols(context.Background(), nil))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "2330.TW", normalizeSymbol(" 2330 "))
	assert.Equal(t, "^TWII", normalizeSymbol("^twii"))
	assert.Equal(t, "", normalizeSymbol(""))
}
