package commands

import (
	"log/slog"

	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/services/notifier"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(testEmailCmd)
}

var testEmailCmd = &cobra.Command{
	Use:   "test-email",
	Short: "Sends a test email to verify the notification config.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := notifier.ConfigFromEnv()
		if err != nil {
			serviceutil.Fatal("failed to read email config", err)
		}
		if err := notifier.New(config).SendTestEmail(cmd.Context()); err != nil {
			serviceutil.Fatal("failed to send test email", err)
		}
		slog.Info("test email sent")
	},
}
