// Package jobpoll drives one remote universe scan at a time through
// idle, running, completed and error by polling its status on a fixed interval.
package jobpoll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/metrics"
	"PatternSentinel/internal/model"
)

var log = logrus.WithField("component", "jobpoll")

const (
	DefaultInterval = 2 * time.Second

	ProgressInitiating = "Initiating analysis job..."
	StartFailedText    = "Unable to connect to the analysis backend. Please ensure the analysis server is running."
)

// ErrSuperseded is returned by Start when a newer Start replaced it while
// its start request was in flight.
var ErrSuperseded = errors.New("scan start superseded")

// Client is the part of the backend the poller needs.
type Client interface {
	StartScan(ctx context.Context, force bool) error
	JobStatus(ctx context.Context) (*model.JobStatus, error)
}

type pollTimer struct {
	ticker *time.Ticker
	quit   chan struct{}
}

// Poller owns the session's single scan job and its polling timer.
type Poller struct {
	client   Client
	interval time.Duration
	onChange func(model.AnalysisJob)

	mu     sync.Mutex
	job    model.AnalysisJob
	token  uint64
	timer  *pollTimer
	timers int
	polls  int
}

// NewPoller creates an idle poller. onChange, when set, is called outside the
// lock with a snapshot after every state change.
func NewPoller(client Client, interval time.Duration, onChange func(model.AnalysisJob)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		onChange: onChange,
		job:      model.AnalysisJob{State: model.JobIdle},
	}
}

// Start supersedes any outstanding job and starts a new one. The previous
// timer is stopped before the start request is issued. A rejected start
// moves the job to error and no status poll is ever made for it.
func (p *Poller) Start(ctx context.Context, force bool) error {
	p.mu.Lock()
	p.stopTimerLocked()
	p.token++
	token := p.token
	p.job = model.AnalysisJob{
		ID:           uuid.NewString(),
		State:        model.JobIdle,
		ProgressText: ProgressInitiating,
		Force:        force,
		StartedAt:    time.Now(),
	}
	snapshot := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snapshot)

	err := p.client.StartScan(ctx, force)

	p.mu.Lock()
	if token != p.token {
		p.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		metrics.JobStarts.WithLabelValues(metrics.OutcomeError).Inc()
		p.job.State = model.JobError
		p.job.ErrorText = StartFailedText
		p.job.FinishedAt = time.Now()
		snapshot = p.snapshotLocked()
		p.mu.Unlock()
		p.notify(snapshot)
		return fmt.Errorf("start scan: %w", err)
	}

	metrics.JobStarts.WithLabelValues(metrics.OutcomeOK).Inc()
	p.job.State = model.JobRunning
	t := &pollTimer{ticker: time.NewTicker(p.interval), quit: make(chan struct{})}
	p.timer = t
	p.timers++
	snapshot = p.snapshotLocked()
	p.mu.Unlock()

	log.Infof("scan job %s started (force=%v)", snapshot.ID, force)
	p.notify(snapshot)

	go p.loop(context.WithoutCancel(ctx), token, t)
	return nil
}

// loop runs ticks one at a time. A tick that outlasts the interval makes the
// ticker drop the ticks it missed, so requests never overlap.
func (p *Poller) loop(ctx context.Context, token uint64, t *pollTimer) {
	defer t.ticker.Stop()
	for {
		select {
		case <-t.quit:
			return
		case <-t.ticker.C:
			select {
			case <-t.quit:
				return
			default:
			}
			p.tick(ctx, token, t)
		}
	}
}

func (p *Poller) tick(ctx context.Context, token uint64, t *pollTimer) {
	p.mu.Lock()
	p.polls++
	p.mu.Unlock()

	st, err := p.client.JobStatus(ctx)

	p.mu.Lock()
	if token != p.token || p.timer != t || p.job.State != model.JobRunning {
		p.mu.Unlock()
		metrics.JobPolls.WithLabelValues(metrics.OutcomeStale).Inc()
		return
	}
	if err != nil {
		p.mu.Unlock()
		metrics.JobPolls.WithLabelValues(metrics.OutcomeError).Inc()
		log.WithError(err).Warn("status poll failed, retrying on next tick")
		return
	}

	switch st.State {
	case model.JobRunning, model.JobIdle:
		metrics.JobPolls.WithLabelValues(metrics.OutcomeOK).Inc()
		if st.ProgressText == "" || st.ProgressText == p.job.ProgressText {
			p.mu.Unlock()
			return
		}
		p.job.ProgressText = st.ProgressText

	case model.JobCompleted:
		metrics.JobPolls.WithLabelValues(metrics.OutcomeCompleted).Inc()
		p.stopTimerLocked()
		p.job.State = model.JobCompleted
		p.job.ResultList = st.ResultList
		if p.job.ResultList == nil {
			p.job.ResultList = []model.ScanPick{}
		}
		p.job.FinishedAt = time.Now()

	case model.JobError:
		metrics.JobPolls.WithLabelValues(metrics.OutcomeFailed).Inc()
		p.stopTimerLocked()
		p.job.State = model.JobError
		p.job.ErrorText = st.ErrorText
		if p.job.ErrorText == "" {
			p.job.ErrorText = "analysis failed"
		}
		p.job.FinishedAt = time.Now()

	default:
		p.mu.Unlock()
		metrics.JobPolls.WithLabelValues(metrics.OutcomeError).Inc()
		log.Warnf("unknown job status %q ignored", st.State)
		return
	}

	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	if snapshot.State.Terminal() {
		log.Infof("scan job %s %s (%d picks)", snapshot.ID, snapshot.State, len(snapshot.ResultList))
	}
	p.notify(snapshot)
}

// Stop stops polling without changing the job state.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTimerLocked()
}

func (p *Poller) stopTimerLocked() {
	if p.timer == nil {
		return
	}
	close(p.timer.quit)
	p.timer = nil
	p.timers--
}

// Snapshot returns a copy of the current job.
func (p *Poller) Snapshot() model.AnalysisJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() model.AnalysisJob {
	job := p.job
	if job.ResultList != nil {
		job.ResultList = append([]model.ScanPick(nil), job.ResultList...)
	}
	return job
}

// ActiveTimers is the number of live polling timers, at most one.
func (p *Poller) ActiveTimers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timers
}

// Polls is the number of status requests issued so far.
func (p *Poller) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// Wait blocks until the current job is terminal or ctx is done.
func (p *Poller) Wait(ctx context.Context) (model.AnalysisJob, error) {
	d := p.interval / 4
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		job := p.Snapshot()
		if job.State.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Poller) notify(job model.AnalysisJob) {
	if p.onChange != nil {
		p.onChange(job)
	}
}
