package commands

import (
	"errors"
	"log/slog"
	"os"

	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/services/products"

	"github.com/spf13/cobra"
)

var trackFlags struct {
	config  string
	issue   string
	comment string
}

func init() {
	f := trackCmd.Flags()
	f.StringVar(&trackFlags.config, "config", "products.json5", "Tracked product config to edit.")
	f.StringVar(&trackFlags.issue, "issue-body", "", "Issue body containing the product JSON block. Defaults to $ISSUE_BODY.")
	f.StringVar(&trackFlags.comment, "comment-body", "", "Comment body containing the command. Defaults to $COMMENT_BODY.")
	rootCmd.AddCommand(trackCmd)
}

// trackCmd backs the issue-comment workflow: a "track" or "ignore"
// comment on a product request issue updates the config. Plain
// discussion comments are not an error, the run just does nothing.
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Applies a track/ignore issue comment to the product config.",
	Run: func(cmd *cobra.Command, args []string) {
		issue := trackFlags.issue
		if issue == "" {
			issue = os.Getenv("ISSUE_BODY")
		}
		comment := trackFlags.comment
		if comment == "" {
			comment = os.Getenv("COMMENT_BODY")
		}

		product, err := products.ApplyIssueCommand(trackFlags.config, issue, comment)
		if errors.Is(err, products.ErrNotACommand) {
			slog.Info("comment is not a command, nothing to do")
			return
		}
		if err != nil {
			serviceutil.Fatal("failed to apply command", err)
		}
		slog.Info("updated product config",
			"product", product.Name, "site", product.Site, "status", product.Status)
	},
}
