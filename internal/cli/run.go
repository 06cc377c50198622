package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"PatternSentinel/internal/notifier"
	"PatternSentinel/internal/scene"
	"PatternSentinel/internal/scheduler"
	"PatternSentinel/internal/server"
)

func init() {
	RunCmd.Flags().Bool("run-on-start", false, "start a universe scan right away")
	RunCmd.Flags().String("chart-out", "", "also write the displayed chart to this PNG file")
	RootCmd.AddCommand(RunCmd)
}

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "run the sentinel: quote board, scheduled scans, Telegram bot and dashboard API",
	PreRun: func(cmd *cobra.Command, args []string) {
		bindLocalFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var sink scene.Sink
		if out := viper.GetString("chart-out"); out != "" {
			sink = scene.FileSink{Path: out}
		}
		a, err := newApp(cfg, sink)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.WithError(err).Error("shutdown")
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a.checkBackend(ctx)
		a.session.Start(ctx)

		var tn *notifier.TelegramNotifier
		var sender scheduler.Sender
		if cfg.TelegramEnabled() {
			tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
			sender = tn
		}

		sched := scheduler.NewScheduler(ctx, a.session, sender, a.composer, cfg.Chart.Width, cfg.Chart.Height)
		if err := sched.RegisterScan(cfg.Job.ScanCron, cfg.Job.Force); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		g, gctx := errgroup.WithContext(ctx)
		if tn != nil {
			g.Go(func() error {
				log.Info("telegram polling started")
				tn.StartPolling(gctx, sched.HandleCommand)
				return nil
			})
		}
		if cfg.Server.Addr != "" {
			srv := server.New(server.Options{
				Session:  a.session,
				Recorder: a.recorder,
				Frame:    a.frame,
				Display:  a.view,
			})
			g.Go(func() error {
				return srv.Run(gctx, cfg.Server.Addr)
			})
		}

		if viper.GetBool("run-on-start") {
			log.Info("run-on-start enabled, starting a scan now")
			g.Go(func() error {
				if err := a.session.StartScan(gctx, cfg.Job.Force); err != nil {
					log.WithError(err).Warn("scan on start failed")
				}
				return nil
			})
		}

		log.Info("PatternSentinel is running. Press Ctrl+C to stop.")
		<-gctx.Done()
		log.Info("shutdown signal received, stopping...")
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("PatternSentinel stopped")
		return nil
	},
}
