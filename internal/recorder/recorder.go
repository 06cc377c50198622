package recorder

import "PatternSentinel/internal/model"

// ScanRun is one finished universe scan.
type ScanRun struct {
	JobID      string `db:"job_id"`
	Force      bool   `db:"force"`
	State      string `db:"state"`
	ErrorText  string `db:"error_text"`
	PickCount  int    `db:"pick_count"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
}

// PickRow is one pick of a completed scan.
type PickRow struct {
	JobID  string `db:"job_id"`
	Symbol string `db:"symbol"`
	Dist   string `db:"dist"`
	Status string `db:"status"`
	Advice string `db:"advice"`
}

// SymbolCheck is one single-symbol check result.
type SymbolCheck struct {
	ID        int64    `db:"id" json:"id"`
	Symbol    string   `db:"symbol" json:"symbol"`
	Interval  string   `db:"interval" json:"interval"`
	Lookback  int      `db:"lookback" json:"lookback"`
	Passed    bool     `db:"passed" json:"passed"`
	Status    string   `db:"status" json:"status"`
	Dist      string   `db:"dist" json:"dist"`
	AnchorA   *float64 `db:"anchor_a" json:"anchor_a"`
	AnchorB   *float64 `db:"anchor_b" json:"anchor_b"`
	AnchorC   *float64 `db:"anchor_c" json:"anchor_c"`
	CheckedAt int64    `db:"checked_at" json:"checked_at"`
}

// Recorder persists scan and check history for later review.
type Recorder interface {
	RecordScan(job *model.AnalysisJob) error
	RecordCheck(res *model.AnalysisResult) error
	RecentChecks(limit int) ([]SymbolCheck, error)
	Close() error
}

// NewSymbolCheck flattens a check result into a history row.
func NewSymbolCheck(res *model.AnalysisResult) SymbolCheck {
	return SymbolCheck{
		Symbol:    res.Symbol,
		Interval:  string(res.Interval.OrDefault()),
		Lookback:  res.Lookback,
		Passed:    res.Passed,
		Status:    res.StatusLabel,
		Dist:      res.DistanceMetric,
		AnchorA:   anchorValue(res.Anchors.A),
		AnchorB:   anchorValue(res.Anchors.B),
		AnchorC:   anchorValue(res.Anchors.C),
		CheckedAt: res.ReceivedAt.Unix(),
	}
}

func anchorValue(a model.Anchor) *float64 {
	if !a.Present() {
		return nil
	}
	v := a.Price()
	return &v
}
