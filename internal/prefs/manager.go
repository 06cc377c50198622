package prefs

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

var log = logrus.WithField("component", "prefs")

// Manager guards the prefs and writes them through on every change.
// An empty file path keeps them in memory only.
type Manager struct {
	mu       sync.Mutex
	prefs    *Prefs
	filePath string
}

// NewManager creates a Manager, loading or initializing prefs from disk.
func NewManager(filePath string, defaultSymbols []string) (*Manager, error) {
	p := &Prefs{}
	if filePath != "" {
		loaded, err := LoadState(filePath)
		if err != nil {
			return nil, fmt.Errorf("load prefs: %w", err)
		}
		p = loaded
	}

	// Initialize if fresh
	if len(p.QuoteSymbols) == 0 {
		p.QuoteSymbols = append([]string(nil), defaultSymbols...)
	}
	if model.ValidateLookback(p.DefaultLookback) != nil {
		p.DefaultLookback = model.DefaultLookback
	}
	if p.DefaultInterval.Validate() != nil {
		p.DefaultInterval = model.IntervalDaily
	}
	p.PickFilter = strategy.ParseFilter(string(p.PickFilter))

	m := &Manager{prefs: p, filePath: filePath}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns a copy of the current prefs.
func (m *Manager) Get() Prefs {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *m.prefs
	p.QuoteSymbols = append([]string(nil), p.QuoteSymbols...)
	return p
}

// SetQuoteSymbols replaces the quote board symbols.
func (m *Manager) SetQuoteSymbols(symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("quote symbols must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.QuoteSymbols = append([]string(nil), symbols...)
	return m.save()
}

// SetFilter stores the scan pick filter.
func (m *Manager) SetFilter(f strategy.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.PickFilter = f
	return m.save()
}

// SetCheckDefaults stores the interval and lookback used when a check omits them.
func (m *Manager) SetCheckDefaults(interval model.Interval, lookback int) error {
	if err := interval.Validate(); err != nil {
		return err
	}
	if err := model.ValidateLookback(lookback); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.DefaultInterval = interval
	m.prefs.DefaultLookback = lookback
	return m.save()
}

func (m *Manager) save() error {
	if m.filePath == "" {
		return nil
	}
	if err := SaveState(m.filePath, m.prefs); err != nil {
		log.WithError(err).Error("failed to save prefs")
		return fmt.Errorf("save prefs: %w", err)
	}
	return nil
}
