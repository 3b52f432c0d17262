// Package history maintains the event-based price history for
// single-store products: one Initial event per product, then one Change
// event per actual price movement, with a derived current state and a
// monotonically decreasing all-time lowest.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"pricewatch-backend/lib/timezone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/history")

// Price moves of at most this size are treated as rounding noise and
// never produce an event.
const changeThreshold = 0.01

const initialType = "initial"

// PriceChange is one event in a product's log. Initial events carry
// Price and Type "initial"; change events carry From/To/ChangePct and
// no Type field, matching the persisted format.
type PriceChange struct {
	Date          string   `json:"date"`
	Type          string   `json:"type,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	From          *float64 `json:"from,omitempty"`
	To            *float64 `json:"to,omitempty"`
	ChangePct     *float64 `json:"change_pct,omitempty"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	DiscountPct   *float64 `json:"discount_pct,omitempty"`
}

func (c PriceChange) IsInitial() bool {
	return c.Type == initialType
}

// EffectivePrice is the price the event established: Price for Initial
// events, To for change events.
func (c PriceChange) EffectivePrice() float64 {
	if c.IsInitial() {
		if c.Price != nil {
			return *c.Price
		}
		return 0
	}
	if c.To != nil {
		return *c.To
	}
	return 0
}

type CurrentState struct {
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	DiscountPct   *float64 `json:"discount_pct,omitempty"`
	Since         string   `json:"since"`
}

type AllTimeLowest struct {
	Price         float64  `json:"price"`
	Date          string   `json:"date"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
}

type ProductHistory struct {
	Name          string         `json:"name"`
	PurchaseURL   string         `json:"purchase_url"`
	Current       CurrentState   `json:"current"`
	AllTimeLowest *AllTimeLowest `json:"all_time_lowest"`
	PriceChanges  []PriceChange  `json:"price_changes"`
}

// Observation is one scraped price handed to RecordObservation.
type Observation struct {
	Key           string
	Name          string
	PurchaseURL   string
	Price         float64
	OriginalPrice *float64
	DiscountPct   *float64
}

type OutcomeKind int

const (
	// NoChange covers both "same price as before" and "nothing usable
	// observed"; neither is worth reporting.
	NoChange OutcomeKind = iota
	New
	Changed
)

// Outcome tells the caller whether an observation moved the recorded
// state, and by how much.
type Outcome struct {
	Kind      OutcomeKind
	From      float64
	To        float64
	ChangePct float64
}

// Store holds every tracked product's history and persists the whole
// map as one JSON file. Single-writer only; one process records a full
// cycle in memory and saves once at the end.
type Store struct {
	path     string
	Products map[string]*ProductHistory
}

// Open loads the history file at path. A missing file starts an empty
// store; a corrupt file is logged and also starts empty rather than
// blocking the cycle.
func Open(path string) *Store {
	s := &Store{path: path, Products: map[string]*ProductHistory{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s
	}
	if err != nil {
		slog.Warn("could not read price history, starting empty", "path", path, "err", err)
		return s
	}
	if err := json.Unmarshal(raw, &s.Products); err != nil {
		slog.Warn("price history is corrupt, starting empty", "path", path, "err", err)
		s.Products = map[string]*ProductHistory{}
	}
	return s
}

func (s *Store) Path() string {
	return s.path
}

// Save writes the store to disk via a temp file and rename so a failed
// write never truncates the existing history.
func (s *Store) Save(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Save")
	defer span.End()

	raw, err := json.MarshalIndent(s.Products, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("marshaling price history: %w", err)
	}

	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rename failed")
		return err
	}
	return nil
}

// RecordObservation folds one scraped price into the product's history.
// Non-positive prices are ignored. Multiple observations on the same
// calendar day collapse to the latest one.
func (s *Store) RecordObservation(ctx context.Context, obs Observation, asOf time.Time) Outcome {
	if obs.Price <= 0 {
		return Outcome{Kind: NoChange}
	}
	date := asOf.Format(timezone.DateLayout)

	product, ok := s.Products[obs.Key]
	if !ok {
		price := obs.Price
		s.Products[obs.Key] = &ProductHistory{
			Name:        obs.Name,
			PurchaseURL: obs.PurchaseURL,
			Current: CurrentState{
				Price:         obs.Price,
				OriginalPrice: obs.OriginalPrice,
				DiscountPct:   obs.DiscountPct,
				Since:         date,
			},
			AllTimeLowest: &AllTimeLowest{
				Price:         obs.Price,
				Date:          date,
				OriginalPrice: obs.OriginalPrice,
			},
			PriceChanges: []PriceChange{{
				Date:          date,
				Type:          initialType,
				Price:         &price,
				OriginalPrice: obs.OriginalPrice,
				DiscountPct:   obs.DiscountPct,
			}},
		}
		slog.InfoContext(ctx, "tracking new product",
			"product", obs.Name, "price", obs.Price)
		return Outcome{Kind: New, To: obs.Price}
	}

	// keep display metadata fresh regardless of price movement
	if obs.Name != "" {
		product.Name = obs.Name
	}
	if obs.PurchaseURL != "" {
		product.PurchaseURL = obs.PurchaseURL
	}

	if math.Abs(obs.Price-product.Current.Price) <= changeThreshold {
		return Outcome{Kind: NoChange}
	}

	if len(product.PriceChanges) == 0 {
		// a groundless log (hand-edited file); restart it
		price := obs.Price
		product.PriceChanges = append(product.PriceChanges, PriceChange{
			Date:          date,
			Type:          initialType,
			Price:         &price,
			OriginalPrice: obs.OriginalPrice,
			DiscountPct:   obs.DiscountPct,
		})
		product.Current = CurrentState{
			Price:         obs.Price,
			OriginalPrice: obs.OriginalPrice,
			DiscountPct:   obs.DiscountPct,
			Since:         date,
		}
		if product.AllTimeLowest == nil || obs.Price < product.AllTimeLowest.Price {
			product.AllTimeLowest = &AllTimeLowest{
				Price:         obs.Price,
				Date:          date,
				OriginalPrice: obs.OriginalPrice,
			}
		}
		return Outcome{Kind: New, To: obs.Price}
	}

	last := &product.PriceChanges[len(product.PriceChanges)-1]
	if last.Date == date {
		return s.amendSameDay(ctx, product, obs, date)
	}

	from := product.Current.Price
	outcome := appendChange(product, obs, from, date)
	slog.InfoContext(ctx, "price change detected",
		"product", product.Name, "from", from, "to", obs.Price)
	return outcome
}

// amendSameDay rewrites today's event instead of appending a second
// one, so repeated runs within a day keep at most one event per date.
func (s *Store) amendSameDay(ctx context.Context, product *ProductHistory, obs Observation, date string) Outcome {
	last := &product.PriceChanges[len(product.PriceChanges)-1]

	if last.IsInitial() {
		price := obs.Price
		last.Price = &price
		last.OriginalPrice = obs.OriginalPrice
		last.DiscountPct = obs.DiscountPct
		product.Current = CurrentState{
			Price:         obs.Price,
			OriginalPrice: obs.OriginalPrice,
			DiscountPct:   obs.DiscountPct,
			Since:         date,
		}
		product.AllTimeLowest = &AllTimeLowest{
			Price:         obs.Price,
			Date:          date,
			OriginalPrice: obs.OriginalPrice,
		}
		return Outcome{Kind: New, To: obs.Price}
	}

	baseline := *last.From
	if math.Abs(obs.Price-baseline) <= changeThreshold {
		// price reverted within the day; today never changed after all
		if len(product.PriceChanges) == 1 {
			// retention pruned the event this one was measured against;
			// reseed the log instead of leaving it empty
			price := baseline
			product.PriceChanges[0] = PriceChange{
				Date:          date,
				Type:          initialType,
				Price:         &price,
				OriginalPrice: obs.OriginalPrice,
				DiscountPct:   obs.DiscountPct,
			}
			product.Current = CurrentState{
				Price:         baseline,
				OriginalPrice: obs.OriginalPrice,
				DiscountPct:   obs.DiscountPct,
				Since:         date,
			}
			return Outcome{Kind: NoChange}
		}
		product.PriceChanges = product.PriceChanges[:len(product.PriceChanges)-1]
		product.Current = CurrentState{
			Price:         baseline,
			OriginalPrice: obs.OriginalPrice,
			DiscountPct:   obs.DiscountPct,
			Since:         previousSince(product),
		}
		return Outcome{Kind: NoChange}
	}

	product.PriceChanges = product.PriceChanges[:len(product.PriceChanges)-1]
	outcome := appendChange(product, obs, baseline, date)
	slog.InfoContext(ctx, "price change amended for today",
		"product", product.Name, "from", baseline, "to", obs.Price)
	return outcome
}

func appendChange(product *ProductHistory, obs Observation, from float64, date string) Outcome {
	to := obs.Price
	pct := roundPct((to - from) / from * 100)
	product.PriceChanges = append(product.PriceChanges, PriceChange{
		Date:          date,
		From:          &from,
		To:            &to,
		ChangePct:     &pct,
		OriginalPrice: obs.OriginalPrice,
		DiscountPct:   obs.DiscountPct,
	})
	product.Current = CurrentState{
		Price:         obs.Price,
		OriginalPrice: obs.OriginalPrice,
		DiscountPct:   obs.DiscountPct,
		Since:         date,
	}
	if product.AllTimeLowest == nil || obs.Price < product.AllTimeLowest.Price {
		product.AllTimeLowest = &AllTimeLowest{
			Price:         obs.Price,
			Date:          date,
			OriginalPrice: obs.OriginalPrice,
		}
	}
	return Outcome{Kind: Changed, From: from, To: to, ChangePct: pct}
}

func previousSince(product *ProductHistory) string {
	if len(product.PriceChanges) == 0 {
		return ""
	}
	return product.PriceChanges[len(product.PriceChanges)-1].Date
}

// Cleanup drops events older than retentionDays, always keeping at
// least the most recent event per product. Current state and the
// all-time lowest are never touched.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) int {
	cutoff := timezone.Now().AddDate(0, 0, -retentionDays).Format(timezone.DateLayout)

	removed := 0
	for _, product := range s.Products {
		changes := product.PriceChanges
		keepFrom := 0
		for keepFrom < len(changes)-1 && changes[keepFrom].Date < cutoff {
			keepFrom++
		}
		if keepFrom > 0 {
			removed += keepFrom
			product.PriceChanges = append([]PriceChange(nil), changes[keepFrom:]...)
		}
	}
	if removed > 0 {
		slog.InfoContext(ctx, "pruned old price change events",
			"removed", removed, "retention_days", retentionDays)
	}
	return removed
}

func roundPct(v float64) float64 {
	return math.Round(v*10) / 10
}
