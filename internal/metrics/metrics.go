// Package metrics holds the prometheus collectors of the sentinel loops.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeRemote    = "remote_error"
	OutcomeStale     = "stale"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

var JobPolls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pattern_sentinel_job_polls_total",
		Help: "scan job status polls by outcome",
	}, []string{"outcome"})

var JobStarts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pattern_sentinel_job_starts_total",
		Help: "scan job start requests by outcome",
	}, []string{"outcome"})

var QuoteTicks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pattern_sentinel_quote_ticks_total",
		Help: "quote board refreshes by outcome",
	}, []string{"outcome"})

var SymbolChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pattern_sentinel_symbol_checks_total",
		Help: "single symbol checks by outcome",
	}, []string{"outcome"})

func init() {
	prometheus.MustRegister(JobPolls, JobStarts, QuoteTicks, SymbolChecks)
}
