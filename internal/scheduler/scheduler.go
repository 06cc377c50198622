package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/config"
	"PatternSentinel/internal/jobpoll"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/notifier"
	"PatternSentinel/internal/scene"
	"PatternSentinel/internal/session"
	"PatternSentinel/internal/strategy"
)

var log = logrus.WithField("component", "scheduler")

// Session is the part of the operator session the scheduler drives.
type Session interface {
	StartScan(ctx context.Context, force bool) error
	CheckSymbol(ctx context.Context, symbol string, lookback int) (*model.AnalysisResult, error)
	Recheck(ctx context.Context, symbol string, interval model.Interval, lookback int) (*model.AnalysisResult, error)
	State() session.State
	PickFilter() strategy.Filter
	SetFilter(filter string) (strategy.Filter, error)
	SetQuoteSymbols(ctx context.Context, symbols []string) error
	OnScanFinished(fn func(model.AnalysisJob))
}

// Sender delivers notifications.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs the timed scan and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Session  Session
	Notifier Sender
	Composer scene.Composer
	Width    int
	Height   int
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler. tn may be nil, in which case
// finished scans are only logged.
func NewScheduler(ctx context.Context, sess Session, tn Sender, composer scene.Composer, width, height int) *Scheduler {
	s := &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Session:  sess,
		Notifier: tn,
		Composer: composer,
		Width:    width,
		Height:   height,
		Ctx:      ctx,
	}
	sess.OnScanFinished(s.scanFinished)
	return s
}

// RegisterScan registers the timed universe scan.
func (s *Scheduler) RegisterScan(scanCron string, force bool) error {
	if scanCron == "" {
		return nil
	}
	if _, err := s.Cron.AddFunc(scanCron, func() { s.scanTask(force) }); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info("scheduler stopped")
}

func (s *Scheduler) scanTask(force bool) {
	log.Infof("running scheduled scan (force=%v)", force)
	if err := s.Session.StartScan(s.Ctx, force); err != nil && !errors.Is(err, jobpoll.ErrSuperseded) {
		log.WithError(err).Error("scheduled scan failed to start")
		s.trySend("❌ " + jobpoll.StartFailedText)
	}
}

func (s *Scheduler) scanFinished(job model.AnalysisJob) {
	if job.State == model.JobError && job.ErrorText == jobpoll.StartFailedText {
		// already reported by whoever started it
		return
	}
	log.Infof("scan %s finished: %s, %d picks", job.ID, job.State, len(job.ResultList))
	s.trySend(notifier.FormatScanReport(job, s.Session.PickFilter()))
}

const helpText = `可用命令:
• /scan [force] 開始全市場掃描
• /status 掃描進度
• /picks [STRONG|STABLE|OBSERVE|ALL] 掃描結果
• /filter TIER 設定預設篩選
• /check 代號 [1d|60m|5m] [60|120|200|500] 個股檢查
• /quotes 即時報價
• /symbols 代號,代號 設定報價清單`

// aliases maps chat keyboard phrases to commands.
var aliases = map[string]string{
	"掃描":   "/scan",
	"掃描進度": "/status",
	"掃描結果": "/picks",
	"即時報價": "/quotes",
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) notifier.Reply {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.Reply{Text: helpText}
	}
	name := fields[0]
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	// "/check@MyBot" in group chats
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	args := fields[1:]

	switch strings.ToLower(name) {
	case "/scan":
		force := len(args) > 0 && strings.EqualFold(args[0], "force")
		if err := s.Session.StartScan(ctx, force); err != nil {
			if errors.Is(err, jobpoll.ErrSuperseded) {
				return notifier.Reply{}
			}
			return notifier.Reply{Text: "❌ " + jobpoll.StartFailedText}
		}
		return notifier.Reply{Text: "⏳ " + jobpoll.ProgressInitiating}
	case "/status":
		st := s.Session.State()
		text := notifier.FormatJobStatus(st.Job)
		if st.Banner != "" {
			text += "\n" + st.Banner
		}
		return notifier.Reply{Text: text}
	case "/picks":
		f := s.Session.PickFilter()
		if len(args) > 0 {
			f = strategy.ParseFilter(args[0])
		}
		return s.picksReply(f)
	case "/filter":
		if len(args) == 0 {
			return notifier.Reply{Text: fmt.Sprintf("目前篩選: %s", s.Session.PickFilter())}
		}
		f, err := s.Session.SetFilter(args[0])
		if err != nil {
			return notifier.Reply{Text: fmt.Sprintf("❌ %v", err)}
		}
		return s.picksReply(f)
	case "/check":
		return s.checkReply(ctx, args)
	case "/quotes":
		return notifier.Reply{Text: notifier.FormatQuoteBoard(s.Session.State().Quotes)}
	case "/symbols":
		symbols := config.SplitSymbols(strings.Join(args, ","))
		if err := s.Session.SetQuoteSymbols(ctx, symbols); err != nil {
			return notifier.Reply{Text: fmt.Sprintf("❌ %v", err)}
		}
		return notifier.Reply{Text: "報價清單: " + strings.Join(symbols, ", ")}
	default:
		return notifier.Reply{Text: helpText}
	}
}

func (s *Scheduler) picksReply(f strategy.Filter) notifier.Reply {
	job := s.Session.State().Job
	if job.State != model.JobCompleted {
		return notifier.Reply{Text: notifier.FormatJobStatus(job)}
	}
	return notifier.Reply{Text: notifier.FormatScanReport(job, f)}
}

func (s *Scheduler) checkReply(ctx context.Context, args []string) notifier.Reply {
	if len(args) == 0 {
		return notifier.Reply{Text: "用法: /check 代號 [1d|60m|5m] [60|120|200|500]"}
	}
	symbol := args[0]
	var interval model.Interval
	lookback := 0
	for _, a := range args[1:] {
		if n, err := strconv.Atoi(a); err == nil {
			lookback = n
			continue
		}
		interval = model.Interval(strings.ToLower(a))
	}

	var (
		res *model.AnalysisResult
		err error
	)
	if interval == "" {
		res, err = s.Session.CheckSymbol(ctx, symbol, lookback)
	} else {
		res, err = s.Session.Recheck(ctx, symbol, interval, lookback)
	}
	if err != nil {
		if errors.Is(err, session.ErrStaleCheck) {
			return notifier.Reply{Text: fmt.Sprintf("↩️ %s 已被較新的查詢取代", html.EscapeString(symbol))}
		}
		if banner := s.Session.State().Banner; banner != "" {
			return notifier.Reply{Text: "❌ " + banner}
		}
		return notifier.Reply{Text: fmt.Sprintf("❌ %v", err)}
	}

	caption := notifier.FormatCheckResult(res)
	png, err := scene.RenderPNG(s.Composer.ComposeResult(res), s.Width, s.Height)
	if err != nil {
		log.WithError(err).Warnf("render %s chart failed", res.Symbol)
		return notifier.Reply{Text: caption}
	}
	return notifier.Reply{Text: caption, Photo: png}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.WithError(err).Error("send notification failed")
	}
}
