package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/model"
)

var log = logrus.WithField("component", "collector")

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements QuoteSource using the Yahoo Finance chart API.
type YahooSource struct {
	Client    *http.Client
	BaseURL   string
	SymbolMap map[string]string // maps display symbol to Yahoo ticker
}

// NewYahooSource creates a Yahoo Finance quote source.
func NewYahooSource(proxyURL string) *YahooSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooSource{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: yahooBaseURL,
		SymbolMap: map[string]string{
			"TWII":  "^TWII",
			"TAIEX": "^TWII",
		},
	}
}

func (f *YahooSource) Name() string { return "yahoo" }

// yahooSymbol maps aliases and appends .TW to purely numeric codes.
func (f *YahooSource) yahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if mapped, ok := f.SymbolMap[s]; ok {
		return mapped
	}
	if isDigits(s) {
		return s + ".TW"
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type closeBar struct {
	Time  time.Time
	Close float64
}

// fetchCloses returns the bars of one chart query. It reports the raw bar
// count separately so callers can tell "no data" from "no valid prices".
func (f *YahooSource) fetchCloses(ctx context.Context, symbol, interval, rng string) ([]closeBar, int, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(symbol), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, 0, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, 0, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, 0, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, len(result.Timestamp), nil
	}
	closes := result.Indicators.Quote[0].Close
	bars := make([]closeBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // null bars (halts, holidays)
		}
		bars = append(bars, closeBar{Time: time.Unix(ts, 0), Close: *closes[i]})
	}
	return bars, len(result.Timestamp), nil
}

// quote builds one symbol's quote: minute bars first, daily bars as fallback.
func (f *YahooSource) quote(ctx context.Context, symbol string) model.Quote {
	ticker := f.yahooSymbol(symbol)

	bars, raw, err := f.fetchCloses(ctx, ticker, "1m", "3d")
	if err == nil && raw == 0 {
		bars, raw, err = f.fetchCloses(ctx, ticker, "1d", "5d")
	}
	switch {
	case err != nil:
		return model.Quote{Error: err.Error()}
	case raw == 0:
		return model.Quote{Error: "No Data"}
	case len(bars) == 0:
		return model.Quote{Error: "No Valid Prices"}
	}

	last := bars[len(bars)-1]
	prev := last
	if len(bars) > 1 {
		prev = bars[len(bars)-2]
	}
	change := last.Close - prev.Close
	pct := 0.0
	if prev.Close != 0 {
		pct = change / prev.Close
	}
	return model.Quote{
		Price:     last.Close,
		Change:    change,
		PctChange: pct,
		Timestamp: last.Time.Format("2006-01-02 15:04:05-07:00"),
	}
}

// Quotes fetches each symbol individually; failures stay per-symbol.
func (f *YahooSource) Quotes(ctx context.Context, symbols []string) (*model.QuoteSet, error) {
	set := &model.QuoteSet{
		Symbols: symbols,
		Quotes:  make(map[string]model.Quote, len(symbols)),
	}
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q := f.quote(ctx, sym)
		if q.Error != "" {
			log.Warnf("%s: %s", sym, q.Error)
		}
		set.Quotes[sym] = q
	}
	set.UpdatedAt = time.Now()
	return set, nil
}
