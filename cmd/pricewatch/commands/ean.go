package commands

import (
	"fmt"
	"time"

	"pricewatch-backend/lib/scrape"
	"pricewatch-backend/lib/scrapers/shopify"
	"pricewatch-backend/lib/scrapers/tokmanni"
	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/services/eanhistory"
	"pricewatch-backend/services/eanmonitor"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/products"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var eanFlags struct {
	products string
	history  string
	delay    time.Duration
	noEmail  bool
}

func init() {
	f := eanCmd.Flags()
	f.StringVar(&eanFlags.products, "products", "ean_products.json5", "Tracked EAN product config.")
	f.StringVar(&eanFlags.history, "history", "ean_price_history.json", "EAN price history file.")
	f.DurationVar(&eanFlags.delay, "delay", 2*time.Second, "Base delay between requests.")
	f.BoolVar(&eanFlags.noEmail, "no-email", false, "Log alerts instead of sending email.")
	rootCmd.AddCommand(eanCmd)
}

var eanCmd = &cobra.Command{
	Use:   "ean",
	Short: "Runs one cross-store monitoring cycle over every tracked EAN.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := products.ReadEANConfig(eanFlags.products)
		if err != nil {
			serviceutil.Fatal("failed to read EAN product config", err)
		}

		var notify eanmonitor.Notifier = noopNotifier{}
		if !eanFlags.noEmail {
			emailConfig, err := notifier.ConfigFromEnv()
			if err != nil {
				serviceutil.Fatal("failed to read email config", err)
			}
			notify = notifier.New(emailConfig)
		}

		m := &eanmonitor.Monitor{
			Sources: map[string]scrape.Source{
				"apteekki360":   shopify.NewApteekki360(),
				"sinunapteekki": shopify.NewSinunapteekki(),
				"ruohonjuuri":   shopify.NewRuohonjuuri(),
				"tokmanni":      tokmanni.New(),
			},
			Config: config,
			Store:  eanhistory.Open(eanFlags.history),
			Notify: notify,
			Delay:  eanFlags.delay,
		}

		report, err := m.RunCycle(cmd.Context())
		if err != nil {
			serviceutil.Fatal("EAN monitoring cycle failed", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"EAN", "Product", "Stores Seen", "Lowest", "At"})
		for _, product := range report.Products {
			lowest, store := "-", "-"
			if product.Lowest != nil {
				lowest = fmt.Sprintf("%.2f", product.Lowest.Price)
				store = product.Lowest.Store
			}
			t.AppendRow(table.Row{product.EAN, product.Name, len(product.Stores), lowest, store})
		}
		t.Render()

		for _, drop := range report.Drops {
			fmt.Printf("PRICE DROP: %s now %.2f at %s (was %.2f)\n",
				drop.Name, drop.Today, drop.Store, drop.Previous)
		}
	},
}
