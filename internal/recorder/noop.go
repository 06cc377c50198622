package recorder

import "PatternSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordScan(_ *model.AnalysisJob) error     { return nil }
func (n *NoopRecorder) RecordCheck(_ *model.AnalysisResult) error { return nil }
func (n *NoopRecorder) RecentChecks(_ int) ([]SymbolCheck, error) { return nil, nil }
func (n *NoopRecorder) Close() error                              { return nil }
