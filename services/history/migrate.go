package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"pricewatch-backend/lib/timezone"
)

// Legacy pre-migration shape: one snapshot per calendar day, every day,
// whether or not the price moved.
type LegacyEntry struct {
	CurrentPrice    *float64 `json:"current_price"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	ScrapedAt       string   `json:"scraped_at,omitempty"`
}

type LegacyProduct struct {
	Name         string                 `json:"name"`
	PurchaseURL  string                 `json:"purchase_url"`
	PriceHistory map[string]LegacyEntry `json:"price_history"`
}

// MigrationStats summarizes one migration run for operator review.
type MigrationStats struct {
	Products   int
	OldEntries int
	NewEntries int
}

// CompressionRatio is old entries per surviving event. Near 1.0 means
// every day was a distinct price, which usually indicates noisy source
// data rather than genuinely volatile pricing.
func (s MigrationStats) CompressionRatio() float64 {
	return float64(s.OldEntries) / math.Max(float64(s.NewEntries), 1)
}

// Migrate converts the daily-snapshot shape into the event-based shape.
// Products with no usable entries are dropped. The output satisfies the
// same invariants RecordObservation maintains natively.
func Migrate(legacy map[string]LegacyProduct) (map[string]*ProductHistory, MigrationStats) {
	out := map[string]*ProductHistory{}
	var stats MigrationStats

	for key, product := range legacy {
		if len(product.PriceHistory) == 0 {
			continue
		}

		dates := make([]string, 0, len(product.PriceHistory))
		for date := range product.PriceHistory {
			dates = append(dates, date)
		}
		sort.Strings(dates)
		stats.OldEntries += len(dates)

		var (
			changes   []PriceChange
			prevPrice *float64
			since     string
			lowest    *AllTimeLowest
		)
		for _, date := range dates {
			entry := product.PriceHistory[date]
			if entry.CurrentPrice == nil {
				continue
			}
			price := *entry.CurrentPrice

			if lowest == nil || price < lowest.Price {
				lowest = &AllTimeLowest{
					Price:         price,
					Date:          date,
					OriginalPrice: entry.OriginalPrice,
				}
			}

			switch {
			case prevPrice == nil:
				p := price
				changes = append(changes, PriceChange{
					Date:          date,
					Type:          initialType,
					Price:         &p,
					OriginalPrice: entry.OriginalPrice,
					DiscountPct:   entry.DiscountPercent,
				})
				since = date
				stats.NewEntries++
			case math.Abs(price-*prevPrice) > changeThreshold:
				from, to := *prevPrice, price
				pct := roundPct((to - from) / from * 100)
				changes = append(changes, PriceChange{
					Date:          date,
					From:          &from,
					To:            &to,
					ChangePct:     &pct,
					OriginalPrice: entry.OriginalPrice,
					DiscountPct:   entry.DiscountPercent,
				})
				since = date
				stats.NewEntries++
			}
			prevPrice = &price
		}

		if len(changes) == 0 {
			continue
		}

		last := product.PriceHistory[dates[len(dates)-1]]
		current := CurrentState{Since: since}
		if last.CurrentPrice != nil {
			current.Price = *last.CurrentPrice
		}
		current.OriginalPrice = last.OriginalPrice
		current.DiscountPct = last.DiscountPercent

		out[key] = &ProductHistory{
			Name:          product.Name,
			PurchaseURL:   product.PurchaseURL,
			Current:       current,
			AllTimeLowest: lowest,
			PriceChanges:  changes,
		}
		stats.Products++
	}
	return out, stats
}

// BackupAndMigrate rewrites the history file at path in place,
// leaving a timestamped copy of the original next to it. A migration
// that produces zero events aborts without touching the original.
func BackupAndMigrate(ctx context.Context, path string) (MigrationStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return MigrationStats{}, err
	}

	var legacy map[string]LegacyProduct
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return MigrationStats{}, fmt.Errorf("parsing legacy history: %w", err)
	}

	migrated, stats := Migrate(legacy)
	if stats.NewEntries == 0 {
		return stats, fmt.Errorf("migration of %s produced no events, original left untouched", path)
	}

	backup := fmt.Sprintf("%s.backup.%s", path, timezone.Now().Format("20060102_150405"))
	if err := os.WriteFile(backup, raw, 0o644); err != nil {
		return stats, fmt.Errorf("writing backup: %w", err)
	}
	slog.InfoContext(ctx, "backed up legacy history", "backup", backup)

	out, err := json.MarshalIndent(migrated, "", "  ")
	if err != nil {
		return stats, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return stats, err
	}

	slog.InfoContext(ctx, "migration complete",
		"products", stats.Products,
		"old_entries", stats.OldEntries,
		"new_entries", stats.NewEntries,
		"compression_ratio", fmt.Sprintf("%.1fx", stats.CompressionRatio()))
	return stats, nil
}
