// Package quotepoll refreshes the quote board on a fixed interval.
package quotepoll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/backend"
	"PatternSentinel/internal/collector"
	"PatternSentinel/internal/metrics"
	"PatternSentinel/internal/model"
)

var log = logrus.WithField("component", "quotepoll")

const (
	DefaultInterval = 5 * time.Second

	RemoteErrorText    = "API 回傳錯誤"
	TransportErrorText = "連線失敗"
)

// ErrorText is the board-level message shown for a failed fetch.
func ErrorText(err error) string {
	var re *backend.RemoteError
	if errors.As(err, &re) {
		return RemoteErrorText
	}
	return TransportErrorText
}

// Loop polls a QuoteSource and keeps the latest QuoteSet. Every tick
// replaces the whole set; a failed tick publishes a set carrying only a
// top-level error and the loop keeps its cadence.
type Loop struct {
	source   collector.QuoteSource
	interval time.Duration
	onChange func(*model.QuoteSet)

	mu      sync.Mutex
	symbols []string
	current *model.QuoteSet
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLoop(source collector.QuoteSource, symbols []string, interval time.Duration, onChange func(*model.QuoteSet)) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		source:   source,
		interval: interval,
		onChange: onChange,
		symbols:  append([]string(nil), symbols...),
	}
}

// Start begins polling with an immediate first fetch. Calling Start on a
// running loop restarts it.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	l.stopLocked()
	ctx, cancel := context.WithCancel(ctx)
	l.gen++
	gen := l.gen
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	symbols := l.symbols
	l.mu.Unlock()

	go l.run(ctx, gen, symbols, done)
}

// Stop stops the timer and waits for the loop goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	done := l.done
	l.stopLocked()
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (l *Loop) stopLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
		l.done = nil
	}
}

// SetSymbols replaces the watched symbols and restarts polling if running.
func (l *Loop) SetSymbols(ctx context.Context, symbols []string) {
	l.mu.Lock()
	l.symbols = append([]string(nil), symbols...)
	running := l.cancel != nil
	l.mu.Unlock()
	if running {
		l.Start(ctx)
	}
}

func (l *Loop) Symbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.symbols...)
}

// Current returns the latest set. The returned set is never mutated.
func (l *Loop) Current() *model.QuoteSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *Loop) run(ctx context.Context, gen uint64, symbols []string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.refresh(ctx, gen, symbols)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.refresh(ctx, gen, symbols)
		}
	}
}

// refresh runs one tick; results of a replaced loop generation are dropped.
func (l *Loop) refresh(ctx context.Context, gen uint64, symbols []string) {
	set, err := l.source.Quotes(ctx, symbols)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		text := ErrorText(err)
		if text == RemoteErrorText {
			metrics.QuoteTicks.WithLabelValues(metrics.OutcomeRemote).Inc()
		} else {
			metrics.QuoteTicks.WithLabelValues(metrics.OutcomeError).Inc()
		}
		log.WithError(err).Warn("quote fetch failed")
		set = &model.QuoteSet{Symbols: symbols, Error: text, UpdatedAt: time.Now()}
	} else {
		metrics.QuoteTicks.WithLabelValues(metrics.OutcomeOK).Inc()
	}

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.current = set
	l.mu.Unlock()

	if l.onChange != nil {
		l.onChange(set)
	}
}
