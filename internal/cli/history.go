package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	HistoryCmd.Flags().Int("limit", 20, "number of checks to show")
	RootCmd.AddCommand(HistoryCmd)
}

var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "list recent symbol checks from the sqlite history",
	PreRun: func(cmd *cobra.Command, args []string) {
		bindLocalFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.SQLitePath == "" {
			color.Yellow("database.sqlite_path is not set, no history is kept")
			return nil
		}
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.recorder.RecentChecks(viper.GetInt("limit"))
		if err != nil {
			return err
		}
		t := newTable(table.Row{"checked at", "symbol", "interval", "lookback", "status", "dist"})
		for _, r := range rows {
			status := r.Status
			if r.Passed {
				status = color.GreenString(status)
			}
			t.AppendRow(table.Row{
				time.Unix(r.CheckedAt, 0).Format("2006-01-02 15:04"),
				r.Symbol, r.Interval, r.Lookback, status, r.Dist,
			})
		}
		t.Render()
		return nil
	},
}
