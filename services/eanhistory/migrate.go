package eanhistory

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

// Legacy pre-migration shape: per-store daily snapshots plus a
// date-keyed cross_store_lowest map.
type LegacyEntry struct {
	Price     *float64 `json:"price"`
	Available *bool    `json:"available,omitempty"`
	ScrapedAt string   `json:"scraped_at,omitempty"`
}

type LegacyStore struct {
	URL          string                 `json:"url"`
	PriceHistory map[string]LegacyEntry `json:"price_history"`
}

type LegacyProduct struct {
	Name             string                 `json:"name"`
	Stores           map[string]LegacyStore `json:"stores"`
	CrossStoreLowest map[string]Lowest      `json:"cross_store_lowest"`
	AllTimeLowest    *Lowest                `json:"all_time_lowest"`
}

type MigrationStats struct {
	Products   int
	OldEntries int
	NewEntries int
}

func (s MigrationStats) CompressionRatio() float64 {
	return float64(s.OldEntries) / math.Max(float64(s.NewEntries), 1)
}

// Migrate converts the daily per-store shape into the event-based
// shape. Events are replayed per store, then merged and ordered by
// (date, store). The stored all-time lowest is carried over verbatim;
// the current lowest comes from the latest cross_store_lowest entry.
func Migrate(legacy map[string]LegacyProduct) (map[string]*History, MigrationStats) {
	out := map[string]*History{}
	var stats MigrationStats

	for ean, product := range legacy {
		stores := map[string]*StoreState{}
		var changes []PriceChange

		for storeName, store := range product.Stores {
			if len(store.PriceHistory) == 0 {
				continue
			}
			dates := make([]string, 0, len(store.PriceHistory))
			for date := range store.PriceHistory {
				dates = append(dates, date)
			}
			sort.Strings(dates)
			stats.OldEntries += len(dates)

			var (
				prevPrice *float64
				prevAvail *bool
			)
			for _, date := range dates {
				entry := store.PriceHistory[date]
				available := entry.Available == nil || *entry.Available

				priceChanged := prevPrice != nil && entry.Price != nil &&
					math.Abs(*entry.Price-*prevPrice) > changeThreshold
				availChanged := prevAvail != nil && available != *prevAvail

				if prevPrice == nil && prevAvail == nil {
					changes = append(changes, PriceChange{
						Date:      date,
						Store:     storeName,
						Type:      initialType,
						Price:     entry.Price,
						Available: available,
					})
					stats.NewEntries++
				} else if priceChanged || availChanged {
					ev := PriceChange{Date: date, Store: storeName, Available: available}
					if priceChanged {
						from, to := *prevPrice, *entry.Price
						pct := roundPct((to - from) / from * 100)
						ev.From = &from
						ev.To = &to
						ev.ChangePct = &pct
					}
					if availChanged {
						prev := *prevAvail
						ev.AvailabilityChanged = true
						ev.FromAvailable = &prev
					}
					changes = append(changes, ev)
					stats.NewEntries++
				}

				if entry.Price != nil {
					prevPrice = entry.Price
				}
				a := available
				prevAvail = &a
			}

			last := store.PriceHistory[dates[len(dates)-1]]
			lastAvailable := last.Available == nil || *last.Available
			stores[storeName] = &StoreState{
				URL:          store.URL,
				CurrentPrice: last.Price,
				Available:    lastAvailable,
				LastUpdated:  dates[len(dates)-1],
			}
		}

		if len(changes) == 0 {
			continue
		}

		sort.SliceStable(changes, func(i, j int) bool {
			if changes[i].Date != changes[j].Date {
				return changes[i].Date < changes[j].Date
			}
			return changes[i].Store < changes[j].Store
		})

		var currentLowest *Lowest
		if len(product.CrossStoreLowest) > 0 {
			latest := ""
			for date := range product.CrossStoreLowest {
				if date > latest {
					latest = date
				}
			}
			entry := product.CrossStoreLowest[latest]
			currentLowest = &Lowest{Price: entry.Price, Store: entry.Store, URL: entry.URL}
		}

		out[ean] = &History{
			Name:          product.Name,
			Stores:        stores,
			CurrentLowest: currentLowest,
			AllTimeLowest: product.AllTimeLowest,
			PriceChanges:  changes,
		}
		stats.Products++
	}
	return out, stats
}

// BackupAndMigrate rewrites the EAN history file at path in place,
// backing up the original first. Zero produced events aborts without
// touching the file.
func BackupAndMigrate(ctx context.Context, path string) (MigrationStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return MigrationStats{}, err
	}

	var legacy map[string]LegacyProduct
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return MigrationStats{}, fmt.Errorf("parsing legacy ean history: %w", err)
	}

	migrated, stats := Migrate(legacy)
	if stats.NewEntries == 0 {
		return stats, fmt.Errorf("migration of %s produced no events, original left untouched", path)
	}

	backup := fmt.Sprintf("%s.backup.%s", path, timezone.Now().Format("20060102_150405"))
	if err := os.WriteFile(backup, raw, 0o644); err != nil {
		return stats, fmt.Errorf("writing backup: %w", err)
	}
	slog.InfoContext(ctx, "backed up legacy ean history", "backup", backup)

	out, err := json.MarshalIndent(migrated, "", "  ")
	if err != nil {
		return stats, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return stats, err
	}

	slog.InfoContext(ctx, "ean migration complete",
		"products", stats.Products,
		"old_entries", stats.OldEntries,
		"new_entries", stats.NewEntries,
		"compression_ratio", fmt.Sprintf("%.1fx", stats.CompressionRatio()))
	return stats, nil
}
