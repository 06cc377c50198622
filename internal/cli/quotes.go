package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"PatternSentinel/internal/config"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/quotepoll"
)

func init() {
	RootCmd.AddCommand(QuotesCmd)
}

var QuotesCmd = &cobra.Command{
	Use:   "quotes [SYMBOLS]",
	Short: "print the quote board once",
	Long:  "Prints the quote board. SYMBOLS is a comma separated list; without it the saved board is used.",
	Args:  cobra.MaximumNArgs(1),
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

		symbols := a.prefs.Get().QuoteSymbols
		if len(args) > 0 {
			symbols = config.SplitSymbols(args[0])
		}
		set, err := a.quotes.Quotes(context.Background(), symbols)
		if err != nil {
			color.Red(quotepoll.ErrorText(err))
			return err
		}
		printQuotes(symbols, set)
		return nil
	},
}

func printQuotes(symbols []string, set *model.QuoteSet) {
	up := color.New(color.FgRed).SprintFunc()
	down := color.New(color.FgGreen).SprintFunc()

	t := newTable(table.Row{"symbol", "price", "change", "%", "time"})
	for _, sym := range symbols {
		q, ok := set.Quotes[sym]
		switch {
		case !ok:
			t.AppendRow(table.Row{sym, "--", "", "", ""})
		case q.Error != "":
			t.AppendRow(table.Row{sym, color.YellowString(q.Error), "", "", ""})
		default:
			paint := fmt.Sprint
			if q.Change > 0 {
				paint = up
			} else if q.Change < 0 {
				paint = down
			}
			t.AppendRow(table.Row{
				sym,
				fmt.Sprintf("%.2f", q.Price),
				paint(fmt.Sprintf("%+.2f", q.Change)),
				paint(fmt.Sprintf("%+.2f%%", q.PctChange*100)),
				q.Timestamp,
			})
		}
	}
	t.Render()
	fmt.Println("updated", set.UpdatedAt.Format("2006-01-02 15:04:05"))
}
