// Package eanmonitor runs the multi-store monitoring cycle: scrape
// every active store for each tracked EAN, record per-store
// observations, detect cross-store lowest-price drops, and notify.
package eanmonitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pricewatch-backend/lib/scrape"
	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/eanhistory"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/products"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/eanmonitor")

const retentionDays = 365

// Scraped names that diverge this far from the configured product name
// usually mean the URL now points at a different article.
const nameSimilarityFloor = 0.6

type Notifier interface {
	SendEANDropAlert(ctx context.Context, drops []notifier.EANDrop) error
	SendFailureAlert(ctx context.Context, monitor, details string) error
}

type Monitor struct {
	// Sources maps store name to its scraper.
	Sources map[string]scrape.Source
	Config  products.EANConfig
	Store   *eanhistory.Store
	Notify  Notifier
	Delay   time.Duration
	// Now overrides the cycle clock; nil means timezone.Now.
	Now func() time.Time
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return timezone.Now()
}

// ProductResult is one EAN's outcome within a cycle.
type ProductResult struct {
	EAN    string
	Name   string
	Stores map[string]eanhistory.StoreObservation
	Lowest *eanhistory.Lowest
}

type CycleReport struct {
	RunID    string
	Products []ProductResult
	Drops    []notifier.EANDrop
}

// RunCycle executes one full multi-store pass. Per-store failures are
// skipped; a cycle with zero successful observations across every EAN
// sends a failure alert and errors.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleReport, error) {
	ctx, span := tracer.Start(ctx, "RunCycle")
	defer span.End()

	report := &CycleReport{RunID: uuid.NewString()}
	slog.InfoContext(ctx, "starting ean monitoring cycle", "run_id", report.RunID)

	now := m.now()
	attempted, observed := 0, 0

	for _, product := range m.Config.Tracked() {
		results := map[string]eanhistory.StoreObservation{}

		for store, url := range product.ActiveStores() {
			source, ok := m.Sources[store]
			if !ok {
				slog.WarnContext(ctx, "no scraper for store", "store", store)
				continue
			}
			attempted++
			if attempted > 1 && m.Delay > 0 {
				scrape.Throttle(ctx, m.Delay)
			}

			obs, err := source.Observe(ctx, scrape.ProductRef{Name: product.Name, URL: url})
			if err != nil {
				slog.WarnContext(ctx, "observation failed",
					"ean", product.EAN, "store", store, "err", err)
				continue
			}
			if obs == nil {
				slog.WarnContext(ctx, "no product data",
					"ean", product.EAN, "store", store, "url", url)
				continue
			}
			observed++
			checkProductName(ctx, product, store, obs.Name)

			results[store] = eanhistory.StoreObservation{
				Store:     store,
				URL:       url,
				Price:     obs.CurrentPrice,
				Available: obs.Available,
			}
		}

		if len(results) == 0 {
			slog.WarnContext(ctx, "no results for ean", "ean", product.EAN)
			continue
		}

		lowest := eanhistory.FindLowestInStock(results)
		if lowest != nil {
			slog.InfoContext(ctx, "lowest in-stock price",
				"ean", product.EAN, "price", lowest.Price, "store", lowest.Store)
		} else {
			slog.WarnContext(ctx, "no in-stock prices", "ean", product.EAN)
		}

		// detect against the previous cycle before overwriting it
		if drop := m.Store.DetectDrop(product.EAN, lowest); drop != nil {
			slog.InfoContext(ctx, "price drop detected",
				"ean", product.EAN,
				"from", drop.Previous, "to", drop.Today,
				"best_ever", drop.BestEver)
			report.Drops = append(report.Drops, toEmailDrop(drop, results))
		}

		for _, obs := range results {
			m.Store.RecordObservation(ctx, product.EAN, product.Name, obs, now)
		}
		m.Store.UpdateLowest(product.EAN, lowest, now)

		report.Products = append(report.Products, ProductResult{
			EAN:    product.EAN,
			Name:   product.Name,
			Stores: results,
			Lowest: lowest,
		})
	}

	if attempted > 0 && observed == 0 {
		details := fmt.Sprintf(
			"None of the %d configured store pages could be observed across %d tracked EANs.",
			attempted, len(m.Config.Tracked()))
		if err := m.Notify.SendFailureAlert(ctx, "ean", details); err != nil {
			slog.ErrorContext(ctx, "failed to send failure alert", "err", err)
		}
		err := fmt.Errorf("ean cycle observed 0 of %d store pages", attempted)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty cycle")
		return report, err
	}

	if len(report.Drops) > 0 {
		if err := m.Notify.SendEANDropAlert(ctx, report.Drops); err != nil {
			slog.ErrorContext(ctx, "failed to send drop alert", "err", err)
		} else {
			slog.InfoContext(ctx, "drop alert sent", "drops", len(report.Drops))
		}
	} else {
		slog.InfoContext(ctx, "no price drops detected")
	}

	m.Store.Cleanup(ctx, retentionDays)

	if err := m.Store.Save(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save history")
		return report, err
	}

	slog.InfoContext(ctx, "ean monitoring cycle complete",
		"run_id", report.RunID,
		"products", len(report.Products),
		"drops", len(report.Drops))
	return report, nil
}

// checkProductName flags store pages whose scraped name no longer
// resembles the configured one, a common symptom of a reused URL.
func checkProductName(ctx context.Context, product products.EANProduct, store, scraped string) {
	if scraped == "" || product.Name == "" {
		return
	}
	similarity := matchr.JaroWinkler(product.Name, scraped, false)
	if similarity < nameSimilarityFloor {
		slog.WarnContext(ctx, "scraped name diverges from configured name",
			"ean", product.EAN,
			"store", store,
			"configured", product.Name,
			"scraped", scraped,
			"similarity", similarity)
	}
}

func toEmailDrop(drop *eanhistory.Drop, results map[string]eanhistory.StoreObservation) notifier.EANDrop {
	out := notifier.EANDrop{
		EAN:      drop.EAN,
		Name:     drop.Name,
		Today:    drop.Today,
		Previous: drop.Previous,
		Savings:  drop.Savings,
		Store:    drop.Store,
		URL:      drop.URL,
		BestEver: drop.BestEver,
	}
	if drop.AllTime != nil {
		price := drop.AllTime.Price
		out.AllTimePrice = &price
		out.AllTimeStore = drop.AllTime.Store
	}
	for store, obs := range results {
		out.StorePrices = append(out.StorePrices, notifier.StorePrice{
			Store:     store,
			Price:     obs.Price,
			Available: obs.Available,
		})
	}
	return out
}
