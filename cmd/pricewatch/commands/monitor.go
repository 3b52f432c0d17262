package commands

import (
	"context"
	"fmt"
	"time"

	"pricewatch-backend/lib/scrape"
	"pricewatch-backend/lib/scrapers/bjornborg"
	"pricewatch-backend/lib/scrapers/fitnesstukku"
	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/services/history"
	"pricewatch-backend/services/monitor"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/products"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var monitorFlags struct {
	products   string
	history    string
	discovery  string
	delay      time.Duration
	noEmail    bool
	scrapeOnly bool
}

func init() {
	f := monitorCmd.Flags()
	f.StringVar(&monitorFlags.products, "products", "products.json5", "Tracked product config.")
	f.StringVar(&monitorFlags.history, "history", "price_history.json", "Price history file.")
	f.StringVar(&monitorFlags.discovery, "discovery", "last_variant_discovery.json", "Variant discovery state file.")
	f.DurationVar(&monitorFlags.delay, "delay", 2*time.Second, "Base delay between requests.")
	f.BoolVar(&monitorFlags.noEmail, "no-email", false, "Log alerts instead of sending email.")
	f.BoolVar(&monitorFlags.scrapeOnly, "test", false, "Scrape and print results without recording or alerting.")
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Runs one monitoring cycle over every tracked store page.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := products.ReadConfig(monitorFlags.products)
		if err != nil {
			serviceutil.Fatal("failed to read product config", err)
		}

		bb := bjornborg.New()
		sources := map[string]scrape.Source{
			"bjornborg":    bb,
			"fitnesstukku": fitnesstukku.New(),
		}

		if monitorFlags.scrapeOnly {
			scrapeTest(cmd.Context(), sources, config)
			return
		}

		var notify monitor.Notifier = noopNotifier{}
		if !monitorFlags.noEmail {
			emailConfig, err := notifier.ConfigFromEnv()
			if err != nil {
				serviceutil.Fatal("failed to read email config", err)
			}
			notify = notifier.New(emailConfig)
		}

		m := &monitor.Monitor{
			Sources:       sources,
			Config:        config,
			Store:         history.Open(monitorFlags.history),
			Notify:        notify,
			Finder:        bb,
			DiscoveryPath: monitorFlags.discovery,
			Delay:         monitorFlags.delay,
		}

		report, err := m.RunCycle(cmd.Context())
		if err != nil {
			serviceutil.Fatal("monitoring cycle failed", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Run", "Attempted", "Observed", "Changes", "New Variants", "Pruned"})
		t.AppendRow(table.Row{
			report.RunID, report.Attempted, report.Observed,
			len(report.Changes), len(report.Variants), report.Pruned,
		})
		t.Render()

		if len(report.Changes) > 0 {
			c := newTable()
			c.AppendHeader(table.Row{"Product", "Previous", "Current", "Change"})
			for _, change := range report.Changes {
				c.AppendRow(table.Row{
					change.Name,
					fmt.Sprintf("%.2f", change.PreviousPrice),
					fmt.Sprintf("%.2f", change.CurrentPrice),
					fmt.Sprintf("%+.1f%%", change.ChangePct),
				})
			}
			c.Render()
		}
	},
}

// scrapeTest observes every tracked page and prints what the scrapers
// see, without touching history or sending email.
func scrapeTest(ctx context.Context, sources map[string]scrape.Source, config products.Config) {
	t := newTable()
	t.AppendHeader(table.Row{"Site", "Product", "Price", "Original", "Result"})
	for site, source := range sources {
		for _, product := range config.Tracked(site) {
			scrape.Throttle(ctx, monitorFlags.delay)
			obs, err := source.Observe(ctx, scrape.ProductRef{Name: product.Name, URL: product.URL})

			price, original, result := "-", "-", "ok"
			switch {
			case err != nil:
				result = err.Error()
			case obs == nil:
				result = "no product found"
			default:
				if obs.CurrentPrice != nil {
					price = fmt.Sprintf("%.2f", *obs.CurrentPrice)
				}
				if obs.OriginalPrice != nil {
					original = fmt.Sprintf("%.2f", *obs.OriginalPrice)
				}
			}
			t.AppendRow(table.Row{site, product.Name, price, original, result})
		}
	}
	t.Render()
}
