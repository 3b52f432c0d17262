// Package products holds the tracked-product configuration: which
// URLs each monitor watches, and the issue-comment workflow that edits
// the config.
package products

import (
	"pricewatch-backend/lib/configutil"
)

const (
	StatusTrack  = "track"
	StatusIgnore = "ignore"
)

type Product struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Site      string `json:"site"`
	Status    string `json:"status"`
	ProductID string `json:"product_id,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Config maps site name to that site's product list.
type Config struct {
	Products map[string][]Product `json:"products"`
}

// Tracked returns the active products for one site.
func (c Config) Tracked(site string) []Product {
	var out []Product
	for _, p := range c.Products[site] {
		if p.Status == StatusTrack {
			out = append(out, p)
		}
	}
	return out
}

// TrackedURLs indexes every tracked product URL, for variant discovery
// dedupe.
func (c Config) TrackedURLs() map[string]bool {
	out := map[string]bool{}
	for _, site := range c.Products {
		for _, p := range site {
			if p.Status == StatusTrack {
				out[p.URL] = true
			}
		}
	}
	return out
}

type EANStore struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

type EANProduct struct {
	EAN    string              `json:"ean"`
	Name   string              `json:"name"`
	Status string              `json:"status"`
	Stores map[string]EANStore `json:"stores"`
}

type EANConfig struct {
	Products []EANProduct `json:"products"`
}

// Tracked returns the active EAN products.
func (c EANConfig) Tracked() []EANProduct {
	var out []EANProduct
	for _, p := range c.Products {
		if p.Status == StatusTrack {
			out = append(out, p)
		}
	}
	return out
}

// ActiveStores returns the stores to scrape for one EAN product.
func (p EANProduct) ActiveStores() map[string]string {
	out := map[string]string{}
	for store, cfg := range p.Stores {
		if cfg.Status == "active" && cfg.URL != "" {
			out[store] = cfg.URL
		}
	}
	return out
}

func ReadConfig(name string) (Config, error) {
	return configutil.ReadConfig[Config](name)
}

func ReadEANConfig(name string) (EANConfig, error) {
	return configutil.ReadConfig[EANConfig](name)
}
