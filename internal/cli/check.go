package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/scene"
)

func init() {
	CheckCmd.Flags().String("interval", "", "candle interval (1d, 60m, 5m); empty runs the manual daily check")
	CheckCmd.Flags().Int("lookback", 0, "lookback window (60, 120, 200, 500)")
	CheckCmd.Flags().String("out", "", "write the annotated chart to this PNG file")
	RootCmd.AddCommand(CheckCmd)
}

var CheckCmd = &cobra.Command{
	Use:   "check SYMBOL",
	Short: "check one symbol for the A/B/C pattern",
	Args:  cobra.ExactArgs(1),
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

		ctx := context.Background()
		interval := model.Interval(viper.GetString("interval"))
		lookback := viper.GetInt("lookback")

		var res *model.AnalysisResult
		if interval == "" {
			res, err = a.session.CheckSymbol(ctx, args[0], lookback)
		} else {
			res, err = a.session.Recheck(ctx, args[0], interval, lookback)
		}
		if err != nil {
			if banner := a.session.State().Banner; banner != "" {
				color.Red(banner)
			}
			return err
		}
		printResult(res)

		if out := viper.GetString("out"); out != "" {
			png, err := scene.RenderPNG(a.composer.ComposeResult(res), cfg.Chart.Width, cfg.Chart.Height)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0644); err != nil {
				return fmt.Errorf("write chart: %w", err)
			}
			fmt.Printf("chart written to %s\n", out)
		}
		return nil
	},
}

func printResult(res *model.AnalysisResult) {
	status := color.New(color.FgYellow)
	if res.Passed {
		status = color.New(color.FgGreen, color.Bold)
	}
	fmt.Printf("%s [%s, %d]  ", res.Symbol, res.Interval.OrDefault(), res.Lookback)
	status.Println(res.StatusLabel)
	if res.DistanceMetric != "" {
		fmt.Printf("dist:   %s\n", res.DistanceMetric)
	}
	for _, a := range []struct {
		name   string
		anchor model.Anchor
	}{{"A", res.Anchors.A}, {"B", res.Anchors.B}, {"C", res.Anchors.C}} {
		if a.anchor.Present() {
			fmt.Printf("%s:      %.2f @ %s\n", a.name, a.anchor.Price(), a.anchor.Index)
		}
	}
	if res.AdviceText != "" {
		fmt.Println(res.AdviceText)
	}
}
