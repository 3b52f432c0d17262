package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/notifier"
)

// Variant discovery is rate limited independently of the cycle cadence
// so a daily cron only hits the listing page about once a week.
const discoveryFrequencyDays = 7

type discoveryState struct {
	LastDiscoveryDate string `json:"last_discovery_date"`
	VariantsFound     int    `json:"variants_found"`
}

func (m *Monitor) discoverVariants(ctx context.Context) []notifier.NewVariant {
	if m.Finder == nil || m.DiscoveryPath == "" {
		return nil
	}

	now := timezone.Now()
	if state, err := readDiscoveryState(m.DiscoveryPath); err == nil {
		last, err := time.Parse(time.RFC3339, state.LastDiscoveryDate)
		if err == nil {
			days := int(now.Sub(last).Hours() / 24)
			if days < discoveryFrequencyDays {
				slog.DebugContext(ctx, "skipping variant discovery",
					"days_since_last", days, "frequency_days", discoveryFrequencyDays)
				return nil
			}
		}
	}

	slog.InfoContext(ctx, "running variant discovery")
	found, err := m.Finder.DiscoverVariants(ctx, m.Config.TrackedURLs())
	if err != nil {
		slog.WarnContext(ctx, "variant discovery failed", "err", err)
		return nil
	}

	if err := writeDiscoveryState(m.DiscoveryPath, discoveryState{
		LastDiscoveryDate: now.Format(time.RFC3339),
		VariantsFound:     len(found),
	}); err != nil {
		slog.WarnContext(ctx, "could not persist discovery state", "err", err)
	}

	variants := make([]notifier.NewVariant, 0, len(found))
	for _, v := range found {
		variants = append(variants, notifier.NewVariant{Name: v.Name, URL: v.URL})
	}
	return variants
}

func readDiscoveryState(path string) (discoveryState, error) {
	var state discoveryState
	raw, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}
	err = json.Unmarshal(raw, &state)
	return state, err
}

func writeDiscoveryState(path string, state discoveryState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
