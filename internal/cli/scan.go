package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

func init() {
	ScanCmd.Flags().Bool("force", false, "ask the backend to rescan even if a fresh result is cached")
	ScanCmd.Flags().String("filter", "", "show only picks of this tier (ALL, STRONG, STABLE, OBSERVE)")
	ScanCmd.Flags().Duration("timeout", 30*time.Minute, "give up waiting after this long")
	RootCmd.AddCommand(ScanCmd)
}

var ScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run a universe scan and print the picks",
	PreRun: func(cmd *cobra.Command, args []string) {
		bindLocalFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
		defer cancel()

		if err := a.session.StartScan(ctx, viper.GetBool("force")); err != nil {
			color.Red(a.session.State().Banner)
			return err
		}

		job, err := a.session.WaitScan(ctx)
		if err != nil {
			return fmt.Errorf("wait for scan: %w", err)
		}
		if job.State == model.JobError {
			color.Red(a.session.State().Banner)
			return fmt.Errorf("scan failed: %s", job.ErrorText)
		}

		filter := a.session.PickFilter()
		if f := viper.GetString("filter"); f != "" {
			filter = strategy.ParseFilter(f)
		}
		picks := a.session.Picks(string(filter))
		printPicks(picks)
		color.Green("%d / %d picks (%s), finished in %s", len(picks), len(job.ResultList), filter,
			job.FinishedAt.Sub(job.StartedAt).Round(time.Second))
		return nil
	},
}

func printPicks(picks []model.ScanPick) {
	t := newTable(table.Row{"#", "symbol", "status", "dist", "advice"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: 60, WidthMaxEnforcer: text.WrapText},
	})
	for i, p := range picks {
		t.AppendRow(table.Row{i + 1, p.Symbol, p.StatusLabel, p.DistanceMetric, p.AdviceText})
	}
	t.Render()
}
