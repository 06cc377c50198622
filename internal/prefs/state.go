package prefs

import (
	"encoding/json"
	"os"
	"time"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

// Prefs are the operator choices that survive restarts.
type Prefs struct {
	QuoteSymbols    []string        `json:"quote_symbols"`
	DefaultLookback int             `json:"default_lookback"`
	DefaultInterval model.Interval  `json:"default_interval"`
	PickFilter      strategy.Filter `json:"pick_filter"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LoadState reads prefs from a JSON file. Returns zero prefs if the file doesn't exist.
func LoadState(filePath string) (*Prefs, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Prefs{}, nil
		}
		return nil, err
	}
	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveState writes prefs to a JSON file.
func SaveState(filePath string, p *Prefs) error {
	p.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
