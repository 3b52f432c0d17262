// Package monitor runs the single-store monitoring cycle: scrape every
// tracked product, record observations, notify on changes, prune old
// events, and persist the updated history.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pricewatch-backend/lib/scrape"
	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/history"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/products"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/monitor")

const retentionDays = 365

// Notifier is the slice of the email surface a cycle needs.
type Notifier interface {
	SendPriceAlert(ctx context.Context, changes []notifier.ProductChange, variants []notifier.NewVariant) error
	SendFailureAlert(ctx context.Context, monitor, details string) error
}

// VariantFinder discovers untracked product variants; the Björn Borg
// listing scraper is the only implementation today.
type VariantFinder interface {
	DiscoverVariants(ctx context.Context, tracked map[string]bool) ([]scrape.ProductRef, error)
}

type Monitor struct {
	// Sources maps site name to its scraper.
	Sources map[string]scrape.Source
	Config  products.Config
	Store   *history.Store
	Notify  Notifier
	// Finder may be nil when no site supports discovery.
	Finder        VariantFinder
	DiscoveryPath string
	// Throttle between requests; zero means no delay (tests).
	Delay time.Duration
	// Now overrides the cycle clock; nil means timezone.Now.
	Now func() time.Time
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return timezone.Now()
}

// CycleReport summarizes one monitoring run.
type CycleReport struct {
	RunID     string
	Attempted int
	Observed  int
	Changes   []notifier.ProductChange
	Variants  []notifier.NewVariant
	Pruned    int
}

// RunCycle executes one full monitoring pass. A cycle where nothing at
// all could be observed sends a failure alert and returns an error;
// individual product failures are skipped and logged.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleReport, error) {
	ctx, span := tracer.Start(ctx, "RunCycle")
	defer span.End()

	report := &CycleReport{RunID: uuid.NewString()}
	slog.InfoContext(ctx, "starting monitoring cycle", "run_id", report.RunID)

	now := m.now()
	for site, source := range m.Sources {
		for _, product := range m.Config.Tracked(site) {
			report.Attempted++
			if report.Attempted > 1 && m.Delay > 0 {
				scrape.Throttle(ctx, m.Delay)
			}

			obs, err := source.Observe(ctx, scrape.ProductRef{Name: product.Name, URL: product.URL})
			if err != nil {
				slog.WarnContext(ctx, "observation failed",
					"site", site, "product", product.Name, "err", err)
				continue
			}
			if obs == nil {
				slog.WarnContext(ctx, "no product data",
					"site", site, "product", product.Name, "url", product.URL)
				continue
			}
			report.Observed++

			outcome := m.Store.RecordObservation(ctx, history.Observation{
				Key:           obs.Key,
				Name:          obs.Name,
				PurchaseURL:   product.URL,
				Price:         deref(obs.CurrentPrice),
				OriginalPrice: obs.OriginalPrice,
				DiscountPct:   obs.DiscountPercent,
			}, now)
			if outcome.Kind == history.Changed {
				report.Changes = append(report.Changes, notifier.ProductChange{
					Name:          obs.Name,
					CurrentPrice:  outcome.To,
					PreviousPrice: outcome.From,
					ChangePct:     outcome.ChangePct,
					OriginalPrice: obs.OriginalPrice,
					PurchaseURL:   product.URL,
				})
			}
		}
	}

	if report.Attempted > 0 && report.Observed == 0 {
		details := fmt.Sprintf(
			"None of the %d tracked products could be observed.\n\n"+
				"This likely means:\n"+
				"- Product URLs have changed or are no longer valid\n"+
				"- Website structure has been updated\n"+
				"- Products are out of stock or discontinued\n"+
				"- Anti-bot measures are blocking access\n\n"+
				"Please check the product pages manually and update the scrapers if needed.",
			report.Attempted)
		if err := m.Notify.SendFailureAlert(ctx, "price", details); err != nil {
			slog.ErrorContext(ctx, "failed to send failure alert", "err", err)
		}
		err := fmt.Errorf("cycle observed 0 of %d products", report.Attempted)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty cycle")
		return report, err
	}

	report.Variants = m.discoverVariants(ctx)

	if len(report.Changes) > 0 || len(report.Variants) > 0 {
		if err := m.Notify.SendPriceAlert(ctx, report.Changes, report.Variants); err != nil {
			slog.ErrorContext(ctx, "failed to send price alert", "err", err)
		} else {
			slog.InfoContext(ctx, "price alert sent",
				"changes", len(report.Changes), "variants", len(report.Variants))
		}
	} else {
		slog.InfoContext(ctx, "no price changes or new variants detected")
	}

	report.Pruned = m.Store.Cleanup(ctx, retentionDays)

	if err := m.Store.Save(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save history")
		return report, err
	}

	slog.InfoContext(ctx, "monitoring cycle complete",
		"run_id", report.RunID,
		"observed", report.Observed,
		"changes", len(report.Changes))
	return report, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
