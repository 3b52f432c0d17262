package commands

import (
	"context"
	"log/slog"

	"pricewatch-backend/services/notifier"
)

// noopNotifier satisfies both monitor notifier interfaces for runs
// where email is disabled. Alerts are logged instead of sent.
type noopNotifier struct{}

func (noopNotifier) SendPriceAlert(ctx context.Context, changes []notifier.ProductChange, variants []notifier.NewVariant) error {
	slog.InfoContext(ctx, "email disabled, skipping price alert",
		"changes", len(changes), "variants", len(variants))
	return nil
}

func (noopNotifier) SendEANDropAlert(ctx context.Context, drops []notifier.EANDrop) error {
	slog.InfoContext(ctx, "email disabled, skipping drop alert", "drops", len(drops))
	return nil
}

func (noopNotifier) SendFailureAlert(ctx context.Context, monitor, details string) error {
	slog.WarnContext(ctx, "email disabled, skipping failure alert", "monitor", monitor)
	return nil
}
