package commands

import (
	"fmt"

	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/services/eanhistory"
	"pricewatch-backend/services/history"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	migrateCmd.AddCommand(migrateSingleCmd)
	migrateCmd.AddCommand(migrateEanCmd)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Converts daily-snapshot history files to the event format.",
}

var migrateSingleCmd = &cobra.Command{
	Use:   "single <path/to/price_history.json>",
	Short: "Migrates a single-store history file in place, keeping a backup.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		stats, err := history.BackupAndMigrate(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("migration failed", err)
		}
		printMigrationStats(stats.Products, stats.OldEntries, stats.NewEntries, stats.CompressionRatio())
	},
}

var migrateEanCmd = &cobra.Command{
	Use:   "ean <path/to/ean_price_history.json>",
	Short: "Migrates a multi-store EAN history file in place, keeping a backup.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		stats, err := eanhistory.BackupAndMigrate(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("migration failed", err)
		}
		printMigrationStats(stats.Products, stats.OldEntries, stats.NewEntries, stats.CompressionRatio())
	},
}

func printMigrationStats(products, oldEntries, newEntries int, ratio float64) {
	t := newTable()
	t.AppendHeader(table.Row{"Products", "Old Entries", "New Events", "Compression"})
	t.AppendRow(table.Row{products, oldEntries, newEntries, fmt.Sprintf("%.1fx", ratio)})
	t.Render()
}
