package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

func TestFormatScanReport(t *testing.T) {
	job := model.AnalysisJob{
		State:      model.JobCompleted,
		FinishedAt: time.Date(2024, 5, 13, 14, 0, 0, 0, time.UTC),
		ResultList: []model.ScanPick{
			{Symbol: "2330.TW", StatusLabel: "強烈買點", DistanceMetric: "+0.5%", AdviceText: "留意頸線 <600>"},
			{Symbol: "2317.TW", StatusLabel: "觀察", DistanceMetric: "-1.0%"},
		},
	}

	msg := FormatScanReport(job, strategy.FilterStrong)
	assert.Contains(t, msg, "2024-05-13 14:00")
	assert.Contains(t, msg, "STRONG | 1 / 2")
	assert.Contains(t, msg, "<b>2330.TW</b> 強烈買點")
	assert.Contains(t, msg, "&lt;600&gt;")
	assert.NotContains(t, msg, "2317.TW")

	msg = FormatScanReport(job, strategy.FilterStable)
	assert.Contains(t, msg, "沒有符合條件的標的")

	msg = FormatScanReport(model.AnalysisJob{State: model.JobError, ErrorText: "timeout"}, strategy.FilterAll)
	assert.Contains(t, msg, "Analysis Failed")
	assert.Contains(t, msg, "timeout")
}

func TestFormatCheckResult(t *testing.T) {
	msg := FormatCheckResult(&model.AnalysisResult{
		Symbol:      "2330.TW",
		Passed:      true,
		StatusLabel: strategy.PassedLabel,
		Lookback:    120,
		Anchors: model.Anchors{
			A: model.Price(600, "2024-05-01"),
			B: model.Price(580, "2024-05-08"),
		},
	})
	assert.Contains(t, msg, "🟢 <b>2330.TW</b> [1d, 120]")
	assert.Contains(t, msg, "A: 600.00 (2024-05-01)")
	assert.Contains(t, msg, "B: 580.00")
	assert.NotContains(t, msg, "C:")
}

func TestFormatQuoteBoard(t *testing.T) {
	assert.Equal(t, "⚠️ 連線失敗", FormatQuoteBoard(&model.QuoteSet{Error: "連線失敗"}))

	msg := FormatQuoteBoard(&model.QuoteSet{
		Symbols: []string{"^TWII", "NQ=F", "2330.TW"},
		Quotes: map[string]model.Quote{
			"^TWII": {Price: 20000, Change: 150, PctChange: 0.0075},
			"NQ=F":  {Error: "No Data"},
		},
	})
	assert.Contains(t, msg, "^TWII: 20000.00 (+150.00, +0.75%)")
	assert.Contains(t, msg, "NQ=F: No Data")
	assert.Contains(t, msg, "2330.TW: --")
}

func TestFormatJobStatus(t *testing.T) {
	assert.Equal(t, "💤 尚未開始掃描", FormatJobStatus(model.AnalysisJob{}))
	assert.Equal(t, "⏳ 掃描中: 12/300", FormatJobStatus(model.AnalysisJob{State: model.JobRunning, ProgressText: "12/300"}))
	assert.Equal(t, "✅ 掃描完成: 1 檔", FormatJobStatus(model.AnalysisJob{State: model.JobCompleted, ResultList: make([]model.ScanPick, 1)}))
}
