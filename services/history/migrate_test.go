package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func legacyDays(prices map[string]float64) map[string]LegacyEntry {
	out := map[string]LegacyEntry{}
	for date, price := range prices {
		p := price
		out[date] = LegacyEntry{CurrentPrice: &p}
	}
	return out
}

func TestMigrateCollapsesIdenticalDays(t *testing.T) {
	// 30 days at one price then 5 at another must become exactly two
	// events with a 17.5x compression ratio
	entries := map[string]LegacyEntry{}
	for i := 1; i <= 30; i++ {
		price := 35.96
		entries[fmt.Sprintf("2025-07-%02d", i)] = LegacyEntry{CurrentPrice: &price}
	}
	for i := 1; i <= 5; i++ {
		price := 30.00
		entries[fmt.Sprintf("2025-08-%02d", i)] = LegacyEntry{CurrentPrice: &price}
	}

	migrated, stats := Migrate(map[string]LegacyProduct{
		"k": {Name: "x", PurchaseURL: "u", PriceHistory: entries},
	})

	require.Equal(t, 35, stats.OldEntries)
	require.Equal(t, 2, stats.NewEntries)
	require.Equal(t, 17.5, stats.CompressionRatio())

	p := migrated["k"]
	require.Len(t, p.PriceChanges, 2)
	require.True(t, p.PriceChanges[0].IsInitial())
	require.Equal(t, 35.96, *p.PriceChanges[0].Price)
	require.Equal(t, 35.96, *p.PriceChanges[1].From)
	require.Equal(t, 30.00, *p.PriceChanges[1].To)
	require.Equal(t, -16.6, *p.PriceChanges[1].ChangePct)

	require.Equal(t, 30.00, p.Current.Price)
	require.Equal(t, "2025-08-01", p.Current.Since)
	require.Equal(t, 30.00, p.AllTimeLowest.Price)
	require.Equal(t, "2025-08-01", p.AllTimeLowest.Date)
}

func TestMigrateMatchesNativeRecording(t *testing.T) {
	// replaying the same price sequence through RecordObservation must
	// yield the same aggregate the migrator produces
	ctx := context.Background()
	prices := map[string]float64{
		"2025-07-04": 44.95,
		"2025-07-05": 44.95,
		"2025-07-06": 35.96,
		"2025-07-07": 35.96,
		"2025-07-08": 38.21,
	}

	migrated, _ := Migrate(map[string]LegacyProduct{
		"k": {Name: "x", PurchaseURL: "u", PriceHistory: legacyDays(prices)},
	})

	native := Open(filepath.Join(t.TempDir(), "h.json"))
	for _, date := range []string{"2025-07-04", "2025-07-05", "2025-07-06", "2025-07-07", "2025-07-08"} {
		native.RecordObservation(ctx, Observation{
			Key: "k", Name: "x", PurchaseURL: "u", Price: prices[date],
		}, day(date))
	}

	if diff := cmp.Diff(native.Products["k"], migrated["k"]); diff != "" {
		t.Fatalf("migrated history differs from natively recorded (-native +migrated):\n%s", diff)
	}
}

func TestMigrateSkipsEmptyProducts(t *testing.T) {
	migrated, stats := Migrate(map[string]LegacyProduct{
		"empty":  {Name: "x", PriceHistory: nil},
		"usable": {Name: "y", PriceHistory: legacyDays(map[string]float64{"2025-07-04": 9.9})},
	})
	require.Len(t, migrated, 1)
	require.Equal(t, 1, stats.Products)
	require.NotContains(t, migrated, "empty")
}

func TestBackupAndMigrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "price_history.json")

	legacy := map[string]LegacyProduct{
		"k": {Name: "x", PurchaseURL: "u", PriceHistory: legacyDays(map[string]float64{
			"2025-07-04": 20, "2025-07-05": 20, "2025-07-06": 15,
		})},
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	stats, err := BackupAndMigrate(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 3, stats.OldEntries)
	require.Equal(t, 2, stats.NewEntries)

	// a timestamped copy of the original must exist
	backups, err := filepath.Glob(path + ".backup.*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	backupRaw, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	require.Equal(t, raw, backupRaw)

	// and the file itself is now event-based
	migrated := Open(path)
	require.Len(t, migrated.Products["k"].PriceChanges, 2)
}

func TestBackupAndMigrateAbortsOnEmptyInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "price_history.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := BackupAndMigrate(context.Background(), path)
	require.Error(t, err)

	// original untouched, no backup written
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{}", string(raw))
	backups, err := filepath.Glob(path + ".backup.*")
	require.NoError(t, err)
	require.Empty(t, backups)
}
