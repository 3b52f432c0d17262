package commands

import (
	"log/slog"

	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/history"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/reporter"

	"github.com/spf13/cobra"
)

var reportFlags struct {
	history string
	outDir  string
	noEmail bool
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.history, "history", "price_history.json", "Price history file.")
	f.StringVar(&reportFlags.outDir, "out", ".", "Directory for the JSON report artifact.")
	f.BoolVar(&reportFlags.noEmail, "no-email", false, "Skip emailing the report.")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generates the periodic analysis report and emails it.",
	Run: func(cmd *cobra.Command, args []string) {
		store := history.Open(reportFlags.history)
		now := timezone.Now()

		report, err := reporter.Generate(cmd.Context(), store, now)
		if err != nil {
			serviceutil.Fatal("report generation failed", err)
		}

		path, err := reporter.SaveArtifact(report, reportFlags.outDir, now)
		if err != nil {
			serviceutil.Fatal("failed to save report artifact", err)
		}
		slog.Info("saved report artifact", "path", path, "period", report.Period)

		if reportFlags.noEmail {
			return
		}
		emailConfig, err := notifier.ConfigFromEnv()
		if err != nil {
			serviceutil.Fatal("failed to read email config", err)
		}
		html, err := reporter.RenderHTML(report)
		if err != nil {
			serviceutil.Fatal("failed to render report", err)
		}
		err = notifier.New(emailConfig).SendReport(cmd.Context(), reporter.Subject(report), html)
		if err != nil {
			serviceutil.Fatal("failed to send report", err)
		}
	},
}
