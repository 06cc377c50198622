package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

func TestNewManager_InitializesFreshState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	m, err := NewManager(path, []string{"^TWII", "2330.TW"})
	require.NoError(t, err)

	p := m.Get()
	assert.Equal(t, []string{"^TWII", "2330.TW"}, p.QuoteSymbols)
	assert.Equal(t, model.DefaultLookback, p.DefaultLookback)
	assert.Equal(t, model.IntervalDaily, p.DefaultInterval)
	assert.Equal(t, strategy.FilterAll, p.PickFilter)

	_, err = os.Stat(path)
	assert.NoError(t, err, "fresh prefs are written through")
}

func TestManager_PersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	m, err := NewManager(path, []string{"^TWII"})
	require.NoError(t, err)

	require.NoError(t, m.SetQuoteSymbols([]string{"NQ=F", "2317.TW"}))
	require.NoError(t, m.SetFilter(strategy.FilterStrong))
	require.NoError(t, m.SetCheckDefaults(model.IntervalHourly, 200))

	m2, err := NewManager(path, []string{"^TWII"})
	require.NoError(t, err)
	p := m2.Get()
	assert.Equal(t, []string{"NQ=F", "2317.TW"}, p.QuoteSymbols)
	assert.Equal(t, strategy.FilterStrong, p.PickFilter)
	assert.Equal(t, model.IntervalHourly, p.DefaultInterval)
	assert.Equal(t, 200, p.DefaultLookback)
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestManager_RejectsInvalidInput(t *testing.T) {
	m, err := NewManager("", []string{"^TWII"})
	require.NoError(t, err)

	assert.Error(t, m.SetQuoteSymbols(nil))
	assert.Error(t, m.SetCheckDefaults("15m", 120))
	assert.Error(t, m.SetCheckDefaults(model.IntervalDaily, 90))
	assert.Equal(t, []string{"^TWII"}, m.Get().QuoteSymbols)
}

func TestManager_GetReturnsCopy(t *testing.T) {
	m, err := NewManager("", []string{"^TWII"})
	require.NoError(t, err)

	p := m.Get()
	p.QuoteSymbols[0] = "mutated"
	assert.Equal(t, "^TWII", m.Get().QuoteSymbols[0])
}

func TestLoadState_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := NewManager(path, nil)
	assert.Error(t, err)
}
