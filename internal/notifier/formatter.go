package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

// maxReportPicks caps how many picks a scan report lists.
const maxReportPicks = 20

// FormatScanReport formats a finished scan job with its filtered picks.
func FormatScanReport(job model.AnalysisJob, filter strategy.Filter) string {
	var b strings.Builder

	if job.State == model.JobError {
		b.WriteString("❌ <b>Analysis Failed</b>\n\n")
		b.WriteString(html.EscapeString(job.ErrorText))
		return b.String()
	}

	picks := filter.Apply(job.ResultList)
	b.WriteString(fmt.Sprintf("📊 <b>A/B/C 掃描結果</b> | %s\n", finishedAt(job).Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("篩選: %s | %d / %d 檔\n\n", filter, len(picks), len(job.ResultList)))
	if len(picks) == 0 {
		b.WriteString("沒有符合條件的標的")
		return b.String()
	}
	for i, p := range picks {
		if i == maxReportPicks {
			b.WriteString(fmt.Sprintf("… 另有 %d 檔\n", len(picks)-maxReportPicks))
			break
		}
		b.WriteString(fmt.Sprintf("<b>%s</b> %s | 距離 %s\n", html.EscapeString(p.Symbol),
			html.EscapeString(p.StatusLabel), html.EscapeString(p.DistanceMetric)))
		if p.AdviceText != "" {
			b.WriteString(fmt.Sprintf("  %s\n", html.EscapeString(p.AdviceText)))
		}
	}
	return b.String()
}

func finishedAt(job model.AnalysisJob) time.Time {
	if !job.FinishedAt.IsZero() {
		return job.FinishedAt
	}
	return time.Now()
}

// FormatCheckResult formats one symbol check for a photo caption.
func FormatCheckResult(res *model.AnalysisResult) string {
	var b strings.Builder
	icon := "⚪"
	if res.Passed {
		icon = "🟢"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b> [%s, %d]\n", icon, html.EscapeString(res.Symbol), res.Interval.OrDefault(), res.Lookback))
	b.WriteString(fmt.Sprintf("狀態: %s\n", html.EscapeString(res.StatusLabel)))
	if res.DistanceMetric != "" {
		b.WriteString(fmt.Sprintf("距離: %s\n", html.EscapeString(res.DistanceMetric)))
	}
	for _, a := range []struct {
		name   string
		anchor model.Anchor
	}{{"A", res.Anchors.A}, {"B", res.Anchors.B}, {"C", res.Anchors.C}} {
		if a.anchor.Present() {
			b.WriteString(fmt.Sprintf("%s: %.2f (%s)\n", a.name, a.anchor.Price(), html.EscapeString(string(a.anchor.Index))))
		}
	}
	if res.AdviceText != "" {
		b.WriteString("\n" + html.EscapeString(res.AdviceText))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatQuoteBoard formats the quote board. A top-level error replaces the
// whole board.
func FormatQuoteBoard(set *model.QuoteSet) string {
	if set == nil {
		return "報價尚未更新"
	}
	if set.Error != "" {
		return "⚠️ " + html.EscapeString(set.Error)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("💹 <b>即時報價</b> | %s\n\n", set.UpdatedAt.Format("15:04:05")))
	for _, sym := range set.Symbols {
		q, ok := set.Quotes[sym]
		switch {
		case !ok:
			b.WriteString(fmt.Sprintf("%s: --\n", html.EscapeString(sym)))
		case q.Error != "":
			b.WriteString(fmt.Sprintf("%s: %s\n", html.EscapeString(sym), html.EscapeString(q.Error)))
		default:
			b.WriteString(fmt.Sprintf("%s: %.2f (%+.2f, %+.2f%%)\n", html.EscapeString(sym), q.Price, q.Change, q.PctChange*100))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatJobStatus formats a one-line job status.
func FormatJobStatus(job model.AnalysisJob) string {
	switch job.State {
	case model.JobRunning:
		return fmt.Sprintf("⏳ 掃描中: %s", html.EscapeString(job.ProgressText))
	case model.JobCompleted:
		return fmt.Sprintf("✅ 掃描完成: %d 檔", len(job.ResultList))
	case model.JobError:
		return fmt.Sprintf("❌ %s", html.EscapeString(job.ErrorText))
	default:
		if job.ID != "" {
			return fmt.Sprintf("⏳ %s", html.EscapeString(job.ProgressText))
		}
		return "💤 尚未開始掃描"
	}
}
