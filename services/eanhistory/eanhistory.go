// Package eanhistory maintains event-based price history for products
// tracked by EAN across multiple stores. Events carry a store dimension
// and, unlike single-store history, availability flips produce events
// even when the price is unchanged.
package eanhistory

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

var tracer = otel.Tracer("services/eanhistory")

const changeThreshold = 0.01

const initialType = "initial"

// StoreState is the latest known per-store snapshot.
type StoreState struct {
	URL          string   `json:"url"`
	CurrentPrice *float64 `json:"current_price"`
	Available    bool     `json:"available"`
	LastUpdated  string   `json:"last_updated"`
}

// PriceChange is one event in an EAN's cross-store log. Initial events
// carry Price; price moves carry From/To/ChangePct; availability flips
// carry AvailabilityChanged/FromAvailable. A single event may carry
// both a price move and a flip when they land on the same day.
type PriceChange struct {
	Date                string   `json:"date"`
	Store               string   `json:"store"`
	Type                string   `json:"type,omitempty"`
	Price               *float64 `json:"price,omitempty"`
	From                *float64 `json:"from,omitempty"`
	To                  *float64 `json:"to,omitempty"`
	ChangePct           *float64 `json:"change_pct,omitempty"`
	Available           bool     `json:"available"`
	AvailabilityChanged bool     `json:"availability_changed,omitempty"`
	FromAvailable       *bool    `json:"from_available,omitempty"`
}

func (c PriceChange) IsInitial() bool {
	return c.Type == initialType
}

// Lowest identifies the cheapest in-stock offer: current (no date) or
// all-time (dated).
type Lowest struct {
	Price float64 `json:"price"`
	Store string  `json:"store"`
	URL   string  `json:"url,omitempty"`
	Date  string  `json:"date,omitempty"`
}

type History struct {
	Name          string                 `json:"name"`
	Stores        map[string]*StoreState `json:"stores"`
	CurrentLowest *Lowest                `json:"current_lowest"`
	AllTimeLowest *Lowest                `json:"all_time_lowest"`
	PriceChanges  []PriceChange          `json:"price_changes"`
}

// StoreObservation is one store's scrape result for an EAN.
type StoreObservation struct {
	Store     string
	URL       string
	Price     *float64
	Available bool
}

// Drop describes a cross-store lowest price that fell since the
// previous cycle.
type Drop struct {
	EAN      string
	Name     string
	Today    float64
	Previous float64
	Savings  float64
	Store    string
	URL      string
	// BestEver is set when today's price is also a new all-time lowest.
	BestEver bool
	AllTime  *Lowest
}

type Store struct {
	path     string
	Products map[string]*History
}

// Open loads the EAN history file at path, starting empty on a missing
// or corrupt file.
func Open(path string) *Store {
	s := &Store{path: path, Products: map[string]*History{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s
	}
	if err != nil {
		slog.Warn("could not read ean history, starting empty", "path", path, "err", err)
		return s
	}
	if err := json.Unmarshal(raw, &s.Products); err != nil {
		slog.Warn("ean history is corrupt, starting empty", "path", path, "err", err)
		s.Products = map[string]*History{}
	}
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Save(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Save")
	defer span.End()

	raw, err := json.MarshalIndent(s.Products, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("marshaling ean history: %w", err)
	}

	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// RecordObservation folds one store's scrape into the EAN's history.
// An event is appended when the price moved by more than the threshold
// or availability flipped; at most one event per (store, day), with
// repeated same-day runs amending the day's event.
func (s *Store) RecordObservation(ctx context.Context, ean, name string, obs StoreObservation, asOf time.Time) {
	date := asOf.Format(timezone.DateLayout)

	h, ok := s.Products[ean]
	if !ok {
		h = &History{Name: name, Stores: map[string]*StoreState{}}
		s.Products[ean] = h
	}
	if name != "" {
		h.Name = name
	}

	state, seen := h.Stores[obs.Store]
	if !seen {
		h.Stores[obs.Store] = &StoreState{
			URL:          obs.URL,
			CurrentPrice: obs.Price,
			Available:    obs.Available,
			LastUpdated:  date,
		}
		h.PriceChanges = append(h.PriceChanges, PriceChange{
			Date:      date,
			Store:     obs.Store,
			Type:      initialType,
			Price:     obs.Price,
			Available: obs.Available,
		})
		slog.InfoContext(ctx, "tracking new store for ean",
			"ean", ean, "store", obs.Store)
		return
	}

	prevPrice, prevAvailable := state.CurrentPrice, state.Available
	if idx := s.sameDayEventIndex(h, obs.Store, date); idx >= 0 {
		ev := h.PriceChanges[idx]
		if ev.IsInitial() {
			// first observation of this store happened today; collapse
			// onto the initial event
			h.PriceChanges[idx].Price = obs.Price
			h.PriceChanges[idx].Available = obs.Available
			state.URL = obs.URL
			state.CurrentPrice = obs.Price
			state.Available = obs.Available
			state.LastUpdated = date
			return
		}
		// baseline is the pre-event state the amended event must be
		// measured against
		if ev.From != nil {
			prevPrice = ev.From
		}
		if ev.FromAvailable != nil {
			prevAvailable = *ev.FromAvailable
		}
		h.PriceChanges = append(h.PriceChanges[:idx], h.PriceChanges[idx+1:]...)
	}

	priceChanged := prevPrice != nil && obs.Price != nil &&
		math.Abs(*obs.Price-*prevPrice) > changeThreshold
	availChanged := obs.Available != prevAvailable

	if priceChanged || availChanged {
		ev := PriceChange{Date: date, Store: obs.Store, Available: obs.Available}
		if priceChanged {
			from, to := *prevPrice, *obs.Price
			pct := roundPct((to - from) / from * 100)
			ev.From = &from
			ev.To = &to
			ev.ChangePct = &pct
			slog.InfoContext(ctx, "price change detected",
				"ean", ean, "store", obs.Store, "from", from, "to", to)
		}
		if availChanged {
			prev := prevAvailable
			ev.AvailabilityChanged = true
			ev.FromAvailable = &prev
			slog.InfoContext(ctx, "availability change detected",
				"ean", ean, "store", obs.Store, "available", obs.Available)
		}
		h.PriceChanges = append(h.PriceChanges, ev)
	}

	if len(h.PriceChanges) == 0 {
		// a same-day revert after retention pruned the store's initial
		// event must not leave the log empty; reseed it
		h.PriceChanges = append(h.PriceChanges, PriceChange{
			Date:      date,
			Store:     obs.Store,
			Type:      initialType,
			Price:     prevPrice,
			Available: prevAvailable,
		})
	}

	state.URL = obs.URL
	if obs.Price != nil {
		state.CurrentPrice = obs.Price
	}
	state.Available = obs.Available
	state.LastUpdated = date
}

func (s *Store) sameDayEventIndex(h *History, store, date string) int {
	for i := len(h.PriceChanges) - 1; i >= 0; i-- {
		ev := h.PriceChanges[i]
		if ev.Date < date {
			return -1
		}
		if ev.Date == date && ev.Store == store {
			return i
		}
	}
	return -1
}

// FindLowestInStock picks the cheapest in-stock offer. Ties go to
// whichever store the map iteration yields first; callers that need a
// stable tie-break do not exist today.
func FindLowestInStock(results map[string]StoreObservation) *Lowest {
	var best *Lowest
	for store, obs := range results {
		if !obs.Available || obs.Price == nil || *obs.Price <= 0 {
			continue
		}
		if best == nil || *obs.Price < best.Price {
			best = &Lowest{Price: *obs.Price, Store: store, URL: obs.URL}
		}
	}
	return best
}

// DetectDrop compares today's cross-store lowest against the previous
// cycle's. Call before UpdateLowest overwrites the previous value.
func (s *Store) DetectDrop(ean string, today *Lowest) *Drop {
	if today == nil {
		return nil
	}
	h, ok := s.Products[ean]
	if !ok || h.CurrentLowest == nil {
		return nil
	}
	prev := h.CurrentLowest.Price
	if today.Price >= prev-changeThreshold {
		return nil
	}
	drop := &Drop{
		EAN:      ean,
		Name:     h.Name,
		Today:    today.Price,
		Previous: prev,
		Savings:  prev - today.Price,
		Store:    today.Store,
		URL:      today.URL,
		AllTime:  h.AllTimeLowest,
	}
	if h.AllTimeLowest == nil || today.Price < h.AllTimeLowest.Price {
		drop.BestEver = true
	}
	return drop
}

// UpdateLowest records today's cross-store lowest and ratchets the
// all-time lowest down when beaten.
func (s *Store) UpdateLowest(ean string, lowest *Lowest, asOf time.Time) {
	if lowest == nil {
		return
	}
	h, ok := s.Products[ean]
	if !ok {
		return
	}
	h.CurrentLowest = &Lowest{Price: lowest.Price, Store: lowest.Store, URL: lowest.URL}
	if h.AllTimeLowest == nil || lowest.Price < h.AllTimeLowest.Price {
		h.AllTimeLowest = &Lowest{
			Price: lowest.Price,
			Store: lowest.Store,
			URL:   lowest.URL,
			Date:  asOf.Format(timezone.DateLayout),
		}
	}
}

// Cleanup drops events older than retentionDays, keeping at least the
// most recent event per EAN.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) int {
	cutoff := timezone.Now().AddDate(0, 0, -retentionDays).Format(timezone.DateLayout)

	removed := 0
	for _, h := range s.Products {
		changes := h.PriceChanges
		keepFrom := 0
		for keepFrom < len(changes)-1 && changes[keepFrom].Date < cutoff {
			keepFrom++
		}
		if keepFrom > 0 {
			removed += keepFrom
			h.PriceChanges = append([]PriceChange(nil), changes[keepFrom:]...)
		}
	}
	if removed > 0 {
		slog.InfoContext(ctx, "pruned old ean events",
			"removed", removed, "retention_days", retentionDays)
	}
	return removed
}

func roundPct(v float64) float64 {
	return math.Round(v*10) / 10
}
