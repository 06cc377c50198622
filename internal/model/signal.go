package model

import "time"

// AnalysisResult is the single-symbol check payload shown to the operator.
// It is replaced wholesale on every new query.
type AnalysisResult struct {
	Symbol         string    `json:"symbol"`
	DistanceMetric string    `json:"dist"`
	StatusLabel    string    `json:"status"`
	Passed         bool      `json:"passed"`
	AdviceText     string    `json:"advice"`
	Candles        Series    `json:"candles"`
	Anchors        Anchors   `json:"anchors"`
	Interval       Interval  `json:"interval"`
	Lookback       int       `json:"lookback"`
	ReceivedAt     time.Time `json:"received_at"`
}

// ScanPick is one entry of a completed universe scan.
type ScanPick struct {
	Symbol         string `json:"symbol"`
	DistanceMetric string `json:"dist"`
	AdviceText     string `json:"advice"`
	Chart          string `json:"chart,omitempty"` // base64 PNG rendered by the backend
	StatusLabel    string `json:"status"`
}

// JobState is the lifecycle state of a universe scan job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobError     JobState = "error"
)

// Terminal reports whether the job instance has finished.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// AnalysisJob is the observable state of the session's scan job.
type AnalysisJob struct {
	ID           string     `json:"id,omitempty"`
	State        JobState   `json:"state"`
	ProgressText string     `json:"progress"`
	ResultList   []ScanPick `json:"results"`
	ErrorText    string     `json:"error,omitempty"`
	Force        bool       `json:"force"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"`
}

// JobStatus is one status-poll response from the backend.
type JobStatus struct {
	State        JobState   `json:"status"`
	ProgressText string     `json:"progress"`
	ResultList   []ScanPick `json:"data"`
	ErrorText    string     `json:"error"`
}
