package eanmonitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pricewatch-backend/lib/scrape"
	"pricewatch-backend/services/eanhistory"
	"pricewatch-backend/services/notifier"
	"pricewatch-backend/services/products"

	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

type fakeSource struct {
	price     *float64
	available bool
	name      string
}

func (s *fakeSource) Observe(_ context.Context, _ scrape.ProductRef) (*scrape.Observation, error) {
	if s.price == nil && s.name == "" {
		return nil, nil
	}
	return &scrape.Observation{
		Name: s.name, CurrentPrice: s.price, Available: s.available,
	}, nil
}

type fakeNotifier struct {
	drops    [][]notifier.EANDrop
	failures []string
}

func (n *fakeNotifier) SendEANDropAlert(_ context.Context, drops []notifier.EANDrop) error {
	n.drops = append(n.drops, drops)
	return nil
}

func (n *fakeNotifier) SendFailureAlert(_ context.Context, _, details string) error {
	n.failures = append(n.failures, details)
	return nil
}

func testConfig() products.EANConfig {
	return products.EANConfig{Products: []products.EANProduct{{
		EAN:    "6430058215893",
		Name:   "D3-vitamiini",
		Status: "track",
		Stores: map[string]products.EANStore{
			"apteekki360": {URL: "https://a/p", Status: "active"},
			"tokmanni":    {URL: "https://t/p", Status: "active"},
		},
	}}}
}

func TestRunCycleDetectsCrossStoreDrop(t *testing.T) {
	dir := t.TempDir()
	apteekki := &fakeSource{name: "D3-vitamiini", price: f(12.9), available: true}
	tokmanni := &fakeSource{name: "D3-vitamiini", price: f(11.5), available: true}
	notify := &fakeNotifier{}
	cycleDay := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)

	m := &Monitor{
		Sources: map[string]scrape.Source{"apteekki360": apteekki, "tokmanni": tokmanni},
		Config:  testConfig(),
		Store:   eanhistory.Open(filepath.Join(dir, "ean.json")),
		Notify:  notify,
		Now:     func() time.Time { return cycleDay },
	}

	// first cycle establishes the baseline, no drop yet
	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Products, 1)
	require.Equal(t, 11.5, report.Products[0].Lowest.Price)
	require.Equal(t, "tokmanni", report.Products[0].Lowest.Store)
	require.Empty(t, report.Drops)

	// next day apteekki360 undercuts
	cycleDay = cycleDay.AddDate(0, 0, 1)
	apteekki.price = f(10.5)
	m.Store = eanhistory.Open(filepath.Join(dir, "ean.json"))

	report, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Drops, 1)
	drop := report.Drops[0]
	require.Equal(t, 11.5, drop.Previous)
	require.Equal(t, 10.5, drop.Today)
	require.Equal(t, "apteekki360", drop.Store)
	require.True(t, drop.BestEver)
	require.Len(t, drop.StorePrices, 2)
	require.Len(t, notify.drops, 1)
}

func TestRunCycleOutOfStockStoreNeverWins(t *testing.T) {
	notify := &fakeNotifier{}
	m := &Monitor{
		Sources: map[string]scrape.Source{
			"apteekki360": &fakeSource{name: "D3-vitamiini", price: f(28.40), available: true},
			"tokmanni":    &fakeSource{name: "D3-vitamiini", price: f(25.00), available: false},
		},
		Config: testConfig(),
		Store:  eanhistory.Open(filepath.Join(t.TempDir(), "ean.json")),
		Notify: notify,
	}

	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "apteekki360", report.Products[0].Lowest.Store)
	require.Equal(t, 28.40, report.Products[0].Lowest.Price)
}

func TestRunCycleAlertsOnTotalFailure(t *testing.T) {
	notify := &fakeNotifier{}
	m := &Monitor{
		Sources: map[string]scrape.Source{
			"apteekki360": &fakeSource{},
			"tokmanni":    &fakeSource{},
		},
		Config: testConfig(),
		Store:  eanhistory.Open(filepath.Join(t.TempDir(), "ean.json")),
		Notify: notify,
	}

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
	require.Len(t, notify.failures, 1)
}
