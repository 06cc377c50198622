// Package backend is the HTTP client of the external analysis service.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"PatternSentinel/internal/model"
)

var log = logrus.WithField("component", "backend")

// Client talks to the analysis backend REST API.
type Client struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	checkLimiter *rate.Limiter
}

// NewClient creates a backend client with optional proxy support.
// checkRate limits symbol checks per second; zero disables the limit.
func NewClient(baseURL, apiKey, proxyURL string, timeout time.Duration, checkRate float64) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
	if checkRate > 0 {
		c.checkLimiter = rate.NewLimiter(rate.Limit(checkRate), 1)
	}
	return c
}

func (c *Client) Name() string { return "backend" }

// StartScan asks the backend to begin a universe scan. Any 2xx reply counts
// as accepted, including "already running".
func (c *Client) StartScan(ctx context.Context, force bool) error {
	q := url.Values{}
	q.Set("force", strconv.FormatBool(force))
	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/analyze", q, &reply); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	log.Debugf("scan start accepted: status=%s %s", reply.Status, reply.Message)
	return nil
}

// JobStatus fetches the current scan job status.
func (c *Client) JobStatus(ctx context.Context) (*model.JobStatus, error) {
	var st model.JobStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return &st, nil
}

// CheckRequest selects one symbol check.
type CheckRequest struct {
	Symbol   string
	Interval model.Interval // empty lets the backend pick daily
	Lookback int
}

type checkResponse struct {
	Symbol   string            `json:"symbol"`
	Dist     json.RawMessage   `json:"dist"`
	Status   string            `json:"status"`
	IsPassed bool              `json:"is_passed"`
	Message  string            `json:"message"`
	Error    string            `json:"error"`
	Candles  []model.Candle    `json:"candles"`
	Interval string            `json:"interval"`
	ValA     *float64          `json:"val_A"`
	IdxA     model.AnchorIndex `json:"idx_A"`
	ValB     *float64          `json:"val_B"`
	IdxB     model.AnchorIndex `json:"idx_B"`
	ValC     *float64          `json:"val_C"`
	IdxC     model.AnchorIndex `json:"idx_C"`
}

// CheckSymbol runs the pattern check for one symbol. A reply without a
// symbol is a backend-reported failure and is returned as *RemoteError.
func (c *Client) CheckSymbol(ctx context.Context, req CheckRequest) (*model.AnalysisResult, error) {
	if c.checkLimiter != nil {
		if err := c.checkLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("check symbol: %w", err)
		}
	}

	q := url.Values{}
	q.Set("symbol", req.Symbol)
	if req.Interval != "" {
		q.Set("interval", string(req.Interval))
	}
	lookback := req.Lookback
	if lookback == 0 {
		lookback = model.DefaultLookback
	}
	q.Set("lookback", strconv.Itoa(lookback))

	var resp checkResponse
	if err := c.do(ctx, http.MethodGet, "/api/check_stock", q, &resp); err != nil {
		return nil, fmt.Errorf("check symbol %s: %w", req.Symbol, err)
	}
	if resp.Symbol == "" {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		return nil, &RemoteError{Message: msg}
	}

	series, err := model.NewSeries(resp.Candles)
	if err != nil {
		log.WithError(err).Warnf("%s: dropping invalid candle series", resp.Symbol)
		series = model.Series{}
	}

	return &model.AnalysisResult{
		Symbol:         resp.Symbol,
		DistanceMetric: rawText(resp.Dist),
		StatusLabel:    resp.Status,
		Passed:         resp.IsPassed,
		AdviceText:     resp.Message,
		Candles:        series,
		Anchors: model.Anchors{
			A: model.Anchor{Value: resp.ValA, Index: resp.IdxA},
			B: model.Anchor{Value: resp.ValB, Index: resp.IdxB},
			C: model.Anchor{Value: resp.ValC, Index: resp.IdxC},
		},
		Interval:   model.Interval(resp.Interval),
		Lookback:   lookback,
		ReceivedAt: time.Now(),
	}, nil
}

// Quotes fetches the latest quotes of symbols in one request.
func (c *Client) Quotes(ctx context.Context, symbols []string) (*model.QuoteSet, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))

	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/quote", q, &raw); err != nil {
		return nil, fmt.Errorf("quotes: %w", err)
	}
	if msg, ok := raw["error"]; ok {
		var s string
		if json.Unmarshal(msg, &s) == nil {
			return nil, &RemoteError{Message: s}
		}
	}

	set := &model.QuoteSet{
		Symbols:   symbols,
		Quotes:    make(map[string]model.Quote, len(raw)),
		UpdatedAt: time.Now(),
	}
	for sym, body := range raw {
		var quote model.Quote
		if err := json.Unmarshal(body, &quote); err != nil {
			quote = model.Quote{Error: fmt.Sprintf("decode: %v", err)}
		}
		set.Quotes[sym] = quote
	}
	return set, nil
}

// Health is the backend liveness reply.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out interface{}) error {
	endpoint := c.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: path, Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// rawText renders a JSON scalar as display text ("+1.2%", 0.012 -> "0.012").
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
