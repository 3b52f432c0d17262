package commands

import (
	"fmt"

	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/analyzer"
	"pricewatch-backend/services/history"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var analyzeFlags struct {
	history string
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFlags.history, "history", "price_history.json", "Price history file.")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Prints trend and deal analysis for every tracked product.",
	Run: func(cmd *cobra.Command, args []string) {
		store := history.Open(analyzeFlags.history)
		now := timezone.Now()

		t := newTable()
		t.AppendHeader(table.Row{"Product", "Current", "Lowest", "Average", "Trend", "Total Change"})
		for key, product := range store.Products {
			analysis, err := analyzer.AnalyzeProduct(key, product, now)
			if err != nil {
				continue
			}
			t.AppendRow(table.Row{
				analysis.Name,
				fmt.Sprintf("%.2f", analysis.Stats.CurrentPrice),
				fmt.Sprintf("%.2f", analysis.Stats.LowestPrice),
				fmt.Sprintf("%.2f", analysis.Stats.AveragePrice),
				analysis.Trend.Direction,
				fmt.Sprintf("%+.1f%%", analysis.Trend.TotalChangePct),
			})
		}
		t.Render()

		portfolio, err := analyzer.PortfolioInsights(store.Products, now)
		if err != nil {
			serviceutil.Fatal("portfolio analysis failed", err)
		}
		p := newTable()
		p.AppendHeader(table.Row{"Analyzed", "Savings Potential", "Increasing", "Decreasing", "Stable"})
		p.AppendRow(table.Row{
			portfolio.ProductsAnalyzed,
			fmt.Sprintf("%.2f EUR", portfolio.TotalSavingsPotential),
			portfolio.TrendDistribution[analyzer.TrendIncreasing],
			portfolio.TrendDistribution[analyzer.TrendDecreasing],
			portfolio.TrendDistribution[analyzer.TrendStable],
		})
		p.Render()
	},
}
