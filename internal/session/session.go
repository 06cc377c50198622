// Package session is the composition root of one operator session. It owns
// the scan job, the displayed check result, the quote board and the error
// banner, and keeps the chart view in step with the displayed result.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/backend"
	"PatternSentinel/internal/collector"
	"PatternSentinel/internal/jobpoll"
	"PatternSentinel/internal/metrics"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/prefs"
	"PatternSentinel/internal/quotepoll"
	"PatternSentinel/internal/recorder"
	"PatternSentinel/internal/scene"
	"PatternSentinel/internal/strategy"
)

var log = logrus.WithField("component", "session")

const (
	CheckFailedText = "查詢失敗"
	ScanFailedText  = "Analysis Failed"
)

// ErrStaleCheck is returned for a check whose reply arrived after a newer
// check had already been applied.
var ErrStaleCheck = errors.New("check superseded by a newer one")

// ErrInvalidRequest marks checks rejected before reaching the backend.
var ErrInvalidRequest = errors.New("invalid check request")

// Backend is what the session needs from the analysis service.
type Backend interface {
	jobpoll.Client
	CheckSymbol(ctx context.Context, req backend.CheckRequest) (*model.AnalysisResult, error)
}

// Options wires a session.
type Options struct {
	Backend       Backend
	Quotes        collector.QuoteSource
	Prefs         *prefs.Manager
	Recorder      recorder.Recorder
	View          *scene.View // optional
	Composer      scene.Composer
	PollInterval  time.Duration
	QuoteInterval time.Duration
}

// State is a point-in-time copy of everything the display shows.
type State struct {
	Job     model.AnalysisJob     `json:"job"`
	Result  *model.AnalysisResult `json:"result"`
	Quotes  *model.QuoteSet       `json:"quotes"`
	Banner  string                `json:"banner,omitempty"`
	Loading bool                  `json:"loading"`
}

type Session struct {
	backend  Backend
	prefs    *prefs.Manager
	recorder recorder.Recorder
	view     *scene.View
	composer scene.Composer

	jobs   *jobpoll.Poller
	quotes *quotepoll.Loop

	mu         sync.Mutex
	result     *model.AnalysisResult
	scene      *scene.Scene
	banner     string
	checkSeq   uint64
	appliedSeq uint64
	inFlight   int

	scanObservers  []func(model.AnalysisJob)
	checkObservers []func(*model.AnalysisResult)

	// serializes View.Show so the view always ends on the latest scene
	renderMu sync.Mutex
}

func New(opts Options) *Session {
	rec := opts.Recorder
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	s := &Session{
		backend:  opts.Backend,
		prefs:    opts.Prefs,
		recorder: rec,
		view:     opts.View,
		composer: opts.Composer,
	}
	s.jobs = jobpoll.NewPoller(opts.Backend, opts.PollInterval, s.onJobChange)

	var symbols []string
	if opts.Prefs != nil {
		symbols = opts.Prefs.Get().QuoteSymbols
	}
	s.quotes = quotepoll.NewLoop(opts.Quotes, symbols, opts.QuoteInterval, nil)
	return s
}

// Start begins the quote loop.
func (s *Session) Start(ctx context.Context) {
	s.quotes.Start(ctx)
}

// Close stops both loops and releases the chart surface.
func (s *Session) Close() error {
	s.jobs.Stop()
	s.quotes.Stop()
	if s.view != nil {
		return s.view.Close()
	}
	return nil
}

// OnScanFinished registers fn to run for every job reaching a terminal state.
func (s *Session) OnScanFinished(fn func(model.AnalysisJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanObservers = append(s.scanObservers, fn)
}

// OnCheck registers fn to run for every applied check result.
func (s *Session) OnCheck(fn func(*model.AnalysisResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkObservers = append(s.checkObservers, fn)
}

// StartScan clears the displayed result and starts a fresh universe scan,
// superseding any scan still running.
func (s *Session) StartScan(ctx context.Context, force bool) error {
	s.mu.Lock()
	s.result = nil
	s.scene = nil
	s.banner = ""
	s.mu.Unlock()
	s.refreshView()

	err := s.jobs.Start(ctx, force)
	if errors.Is(err, jobpoll.ErrSuperseded) {
		log.Debug("scan start superseded")
	}
	return err
}

// WaitScan blocks until the current job is terminal.
func (s *Session) WaitScan(ctx context.Context) (model.AnalysisJob, error) {
	return s.jobs.Wait(ctx)
}

func (s *Session) onJobChange(job model.AnalysisJob) {
	if !job.State.Terminal() {
		return
	}

	s.mu.Lock()
	if job.State == model.JobError {
		if job.ErrorText == jobpoll.StartFailedText {
			s.banner = job.ErrorText
		} else {
			s.banner = fmt.Sprintf("%s: %s", ScanFailedText, job.ErrorText)
		}
	}
	observers := append(([]func(model.AnalysisJob))(nil), s.scanObservers...)
	s.mu.Unlock()

	if err := s.recorder.RecordScan(&job); err != nil {
		log.WithError(err).Warn("record scan failed")
	}
	for _, fn := range observers {
		fn(job)
	}
}

// CheckSymbol runs an operator-typed check with the default interval.
// A pass is labeled as a buy point regardless of the backend label.
func (s *Session) CheckSymbol(ctx context.Context, symbol string, lookback int) (*model.AnalysisResult, error) {
	if lookback == 0 {
		lookback = s.defaultLookback()
	}
	return s.check(ctx, backend.CheckRequest{Symbol: normalizeSymbol(symbol), Lookback: lookback}, true)
}

// Recheck runs the strategy check of symbol at another interval and
// lookback. An empty symbol re-checks the displayed one.
func (s *Session) Recheck(ctx context.Context, symbol string, interval model.Interval, lookback int) (*model.AnalysisResult, error) {
	if symbol == "" {
		s.mu.Lock()
		if s.result != nil {
			symbol = s.result.Symbol
		}
		s.mu.Unlock()
		if symbol == "" {
			return nil, fmt.Errorf("%w: no symbol to re-check", ErrInvalidRequest)
		}
	}
	if interval == "" {
		interval = s.defaultInterval()
	}
	if lookback == 0 {
		lookback = s.defaultLookback()
	}
	return s.check(ctx, backend.CheckRequest{Symbol: normalizeSymbol(symbol), Interval: interval, Lookback: lookback}, false)
}

func (s *Session) check(ctx context.Context, req backend.CheckRequest, manual bool) (*model.AnalysisResult, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if req.Interval != "" {
		if err := req.Interval.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if err := model.ValidateLookback(req.Lookback); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	s.checkSeq++
	seq := s.checkSeq
	s.result = nil
	s.scene = nil
	s.banner = ""
	s.inFlight++
	s.mu.Unlock()
	s.refreshView()

	res, err := s.backend.CheckSymbol(ctx, req)

	s.mu.Lock()
	s.inFlight--
	if seq < s.appliedSeq {
		s.mu.Unlock()
		metrics.SymbolChecks.WithLabelValues(metrics.OutcomeStale).Inc()
		log.Debugf("dropping stale check #%d for %s", seq, req.Symbol)
		return nil, ErrStaleCheck
	}
	s.appliedSeq = seq

	if err != nil {
		var re *backend.RemoteError
		if errors.As(err, &re) {
			metrics.SymbolChecks.WithLabelValues(metrics.OutcomeRemote).Inc()
			s.banner = re.Message
			if s.banner == "" {
				s.banner = CheckFailedText
			}
		} else {
			metrics.SymbolChecks.WithLabelValues(metrics.OutcomeError).Inc()
			s.banner = fmt.Sprintf("%s: %v", CheckFailedText, err)
		}
		s.mu.Unlock()
		log.WithError(err).Warnf("check %s failed", req.Symbol)
		return nil, err
	}

	if manual {
		res.StatusLabel = strategy.ManualStatus(res.Passed, res.StatusLabel)
	}
	s.result = res
	s.scene = s.composer.ComposeResult(res)
	observers := append(([]func(*model.AnalysisResult))(nil), s.checkObservers...)
	s.mu.Unlock()

	metrics.SymbolChecks.WithLabelValues(metrics.OutcomeOK).Inc()
	s.refreshView()

	if err := s.recorder.RecordCheck(res); err != nil {
		log.WithError(err).Warn("record check failed")
	}
	for _, fn := range observers {
		fn(res)
	}
	return res, nil
}

// refreshView hands the current scene to the view. A nil or empty scene
// releases the surface.
func (s *Session) refreshView() {
	if s.view == nil {
		return
	}
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	sc := s.scene
	s.mu.Unlock()

	if err := s.view.Show(sc); err != nil && !errors.Is(err, scene.ErrViewClosed) {
		log.WithError(err).Warn("chart render failed")
	}
}

// Scene returns the scene of the displayed result, if any.
func (s *Session) Scene() *scene.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

// Picks returns the completed scan's picks matching filter. An empty filter
// uses the saved preference.
func (s *Session) Picks(filter string) []model.ScanPick {
	f := s.PickFilter()
	if filter != "" {
		f = strategy.ParseFilter(filter)
	}
	job := s.jobs.Snapshot()
	if job.State != model.JobCompleted {
		return nil
	}
	return f.Apply(job.ResultList)
}

// PickFilter returns the saved default pick filter.
func (s *Session) PickFilter() strategy.Filter {
	if s.prefs == nil {
		return strategy.FilterAll
	}
	return s.prefs.Get().PickFilter
}

// SetFilter saves the default pick filter.
func (s *Session) SetFilter(filter string) (strategy.Filter, error) {
	f := strategy.ParseFilter(filter)
	if s.prefs == nil {
		return f, nil
	}
	return f, s.prefs.SetFilter(f)
}

// SetQuoteSymbols saves the quote board symbols and restarts the quote loop.
func (s *Session) SetQuoteSymbols(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return errors.New("no quote symbols given")
	}
	if s.prefs != nil {
		if err := s.prefs.SetQuoteSymbols(symbols); err != nil {
			return err
		}
	}
	s.quotes.SetSymbols(ctx, symbols)
	return nil
}

// QuoteSymbols returns the symbols on the quote board.
func (s *Session) QuoteSymbols() []string {
	return s.quotes.Symbols()
}

// State returns a snapshot of the display state.
func (s *Session) State() State {
	job := s.jobs.Snapshot()
	quotes := s.quotes.Current()

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Job:     job,
		Result:  s.result,
		Quotes:  quotes,
		Banner:  s.banner,
		Loading: s.inFlight > 0 || job.State == model.JobRunning || (job.State == model.JobIdle && job.ID != ""),
	}
}

func (s *Session) defaultLookback() int {
	if s.prefs == nil {
		return model.DefaultLookback
	}
	return s.prefs.Get().DefaultLookback
}

func (s *Session) defaultInterval() model.Interval {
	if s.prefs == nil {
		return model.IntervalDaily
	}
	return s.prefs.Get().DefaultInterval
}

// normalizeSymbol uppercases and appends .TW to purely numeric codes.
func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return s + ".TW"
}
