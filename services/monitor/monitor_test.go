package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pricewatch-backend/lib/scrape"
	"pricewatch-backend/lib/telemetry"
	"pricewatch-backend/services/history"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/products"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	cleanup := telemetry.SetupForTesting("monitor")
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func f(v float64) *float64 { return &v }

type fakeSource struct {
	observations map[string]*scrape.Observation
	err          error
}

func (s *fakeSource) Observe(_ context.Context, ref scrape.ProductRef) (*scrape.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.observations[ref.URL], nil
}

type fakeNotifier struct {
	alerts   [][]notifier.ProductChange
	variants [][]notifier.NewVariant
	failures []string
}

func (n *fakeNotifier) SendPriceAlert(_ context.Context, changes []notifier.ProductChange, variants []notifier.NewVariant) error {
	n.alerts = append(n.alerts, changes)
	n.variants = append(n.variants, variants)
	return nil
}

func (n *fakeNotifier) SendFailureAlert(_ context.Context, _, details string) error {
	n.failures = append(n.failures, details)
	return nil
}

type fakeFinder struct {
	found []scrape.ProductRef
}

func (d *fakeFinder) DiscoverVariants(_ context.Context, _ map[string]bool) ([]scrape.ProductRef, error) {
	return d.found, nil
}

func testConfig() products.Config {
	return products.Config{Products: map[string][]products.Product{
		"bjornborg": {
			{Name: "Essential Socks 10-pack", URL: "https://b/socks", Site: "bjornborg", Status: "track"},
			{Name: "Ignored Hoodie", URL: "https://b/hoodie", Site: "bjornborg", Status: "ignore"},
		},
	}}
}

func TestRunCycleRecordsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{observations: map[string]*scrape.Observation{
		"https://b/socks": {
			Key: "base_10004564", Name: "Essential Socks 10-pack",
			URL: "https://b/socks", CurrentPrice: f(44.95), Available: true,
		},
	}}
	notify := &fakeNotifier{}
	cycleDay := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	m := &Monitor{
		Sources: map[string]scrape.Source{"bjornborg": source},
		Config:  testConfig(),
		Store:   history.Open(filepath.Join(dir, "price_history.json")),
		Notify:  notify,
		Now:     func() time.Time { return cycleDay },
	}

	// first cycle tracks the product but has no change to report
	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Attempted)
	require.Equal(t, 1, report.Observed)
	require.Empty(t, report.Changes)
	require.Empty(t, notify.alerts)

	// saved to disk at end of cycle
	reloaded := history.Open(filepath.Join(dir, "price_history.json"))
	require.Len(t, reloaded.Products, 1)

	// a later cycle with a lower price notifies
	cycleDay = cycleDay.AddDate(0, 0, 1)
	source.observations["https://b/socks"].CurrentPrice = f(35.96)
	m.Store = reloaded
	report, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	require.Len(t, notify.alerts, 1)
	change := notify.alerts[0][0]
	require.Equal(t, 44.95, change.PreviousPrice)
	require.Equal(t, 35.96, change.CurrentPrice)
}

func TestRunCycleSkipsTransientFailures(t *testing.T) {
	notify := &fakeNotifier{}
	config := products.Config{Products: map[string][]products.Product{
		"bjornborg": {
			{Name: "ok", URL: "https://b/ok", Status: "track"},
			{Name: "broken", URL: "https://b/broken", Status: "track"},
		},
	}}
	source := &fakeSource{observations: map[string]*scrape.Observation{
		"https://b/ok": {Key: "k", Name: "ok", URL: "https://b/ok", CurrentPrice: f(10)},
		// https://b/broken returns (nil, nil): page served but no product
	}}
	m := &Monitor{
		Sources: map[string]scrape.Source{"bjornborg": source},
		Config:  config,
		Store:   history.Open(filepath.Join(t.TempDir(), "h.json")),
		Notify:  notify,
	}

	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Attempted)
	require.Equal(t, 1, report.Observed)
	require.Empty(t, notify.failures)
}

func TestRunCycleAlertsOnTotalFailure(t *testing.T) {
	notify := &fakeNotifier{}
	m := &Monitor{
		Sources: map[string]scrape.Source{"bjornborg": &fakeSource{err: errors.New("blocked")}},
		Config:  testConfig(),
		Store:   history.Open(filepath.Join(t.TempDir(), "h.json")),
		Notify:  notify,
	}

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
	require.Len(t, notify.failures, 1)
	require.Contains(t, notify.failures[0], "Anti-bot measures")
}

func TestRunCycleReportsDiscoveredVariants(t *testing.T) {
	dir := t.TempDir()
	notify := &fakeNotifier{}
	source := &fakeSource{observations: map[string]*scrape.Observation{
		"https://b/socks": {Key: "k", Name: "Essential Socks 10-pack", URL: "https://b/socks", CurrentPrice: f(44.95)},
	}}
	m := &Monitor{
		Sources:       map[string]scrape.Source{"bjornborg": source},
		Config:        testConfig(),
		Store:         history.Open(filepath.Join(dir, "h.json")),
		Notify:        notify,
		Finder:        &fakeFinder{found: []scrape.ProductRef{{Name: "Multi 10-pack", URL: "https://b/multi"}}},
		DiscoveryPath: filepath.Join(dir, "last_variant_discovery.json"),
	}

	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Variants, 1)
	require.Len(t, notify.variants, 1)
	require.Equal(t, "Multi 10-pack", notify.variants[0][0].Name)

	// a second run inside the frequency window skips discovery
	report, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Variants)
}
