package cli

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"PatternSentinel/internal/align"
	"PatternSentinel/internal/backend"
	"PatternSentinel/internal/collector"
	"PatternSentinel/internal/config"
	"PatternSentinel/internal/prefs"
	"PatternSentinel/internal/recorder"
	"PatternSentinel/internal/scene"
	"PatternSentinel/internal/session"
)

// app is everything one command invocation wires together.
type app struct {
	cfg      *config.Config
	backend  *backend.Client
	quotes   collector.QuoteSource
	prefs    *prefs.Manager
	recorder recorder.Recorder
	composer scene.Composer
	frame    *scene.Frame
	view     *scene.View
	resize   chan int
	session  *session.Session
}

// newApp wires a session. sink receives rendered charts; nil keeps them in
// memory only.
func newApp(cfg *config.Config, sink scene.Sink) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		backend:  backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Proxy, cfg.Backend.Timeout, cfg.Backend.CheckRate),
		composer: scene.Composer{Resolver: align.Resolver{Location: loc}},
		frame:    &scene.Frame{},
		resize:   make(chan int, 1),
	}
	log.Infof("analysis backend: %s", cfg.Backend.BaseURL)

	switch cfg.Quotes.Source {
	case "yahoo":
		a.quotes = collector.NewYahooSource(cfg.Proxy)
	default:
		a.quotes = a.backend
	}
	log.Infof("quote source: %s", a.quotes.Name())

	a.prefs, err = prefs.NewManager(cfg.Prefs.StateFile, cfg.Quotes.Symbols)
	if err != nil {
		return nil, fmt.Errorf("init prefs: %w", err)
	}

	a.recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.WithError(err).Warn("init sqlite recorder failed, using noop")
		} else {
			a.recorder = sr
		}
	}

	var out scene.Sink = a.frame
	if sink != nil {
		out = teeSink{a.frame, sink}
	}
	a.view = scene.NewView(scene.ChartSurfaceFactory(cfg.Chart.Width, cfg.Chart.Height, out), a.resize)

	a.session = session.New(session.Options{
		Backend:       a.backend,
		Quotes:        a.quotes,
		Prefs:         a.prefs,
		Recorder:      a.recorder,
		View:          a.view,
		Composer:      a.composer,
		PollInterval:  cfg.Job.PollInterval,
		QuoteInterval: cfg.Quotes.Interval,
	})
	return a, nil
}

// checkBackend logs the backend health. A failing health check is not fatal:
// the backend may come up after the sentinel.
func (a *app) checkBackend(ctx context.Context) {
	h, err := a.backend.Health(ctx)
	if err != nil {
		log.WithError(err).Warn("analysis backend is not reachable yet")
		return
	}
	log.Infof("analysis backend %s (version %s)", h.Status, h.Version)
}

func (a *app) Close() error {
	return multierr.Combine(a.session.Close(), a.recorder.Close())
}

// teeSink publishes every frame to all sinks.
type teeSink []scene.Sink

func (t teeSink) Publish(png []byte) error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, s.Publish(png))
	}
	return err
}
