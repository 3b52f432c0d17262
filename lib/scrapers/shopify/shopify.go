// Package shopify scrapes Shopify-based stores, which consistently expose
// a JSON-LD Product schema with gtin13 EANs and offer availability. One
// instance per store; the pharmacy/health stores (apteekki360,
// sinunapteekki, ruohonjuuri) are all this platform.
package shopify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pricewatch-backend/lib/htmlutil"
	"pricewatch-backend/lib/scrape"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/shopify")

type Scraper struct {
	store string
	http  *resty.Client
}

func New(baseURL, store string) *Scraper {
	return &Scraper{
		store: store,
		http:  scrape.NewClient(baseURL, "scrapers/"+store+"/http"),
	}
}

// Preconfigured store constructors for the tracked Shopify shops.

func NewApteekki360() *Scraper {
	return New("https://www.apteekki360.fi", "apteekki360")
}

func NewSinunapteekki() *Scraper {
	return New("https://www.sinunapteekki.fi", "sinunapteekki")
}

func NewRuohonjuuri() *Scraper {
	return New("https://www.ruohonjuuri.fi", "ruohonjuuri")
}

func (s *Scraper) Store() string {
	return s.store
}

func (s *Scraper) Observe(ctx context.Context, ref scrape.ProductRef) (*scrape.Observation, error) {
	ctx, span := tracer.Start(ctx, "Observe")
	defer span.End()

	res, err := s.http.R().SetContext(ctx).Get(ref.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("%s returned %s for %s", s.store, res.Status(), ref.URL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}

	obs := s.extractStructured(doc, ref.URL)
	if obs == nil {
		obs = s.extractFallback(doc, ref.URL)
	}
	if obs == nil {
		slog.DebugContext(ctx, "no product data on page", "store", s.store, "url", ref.URL)
		return nil, nil
	}

	obs.Key = s.productKey(obs)
	return obs, nil
}

// productKey keys Shopify products by store and EAN so that the same
// article across pharmacies stays distinguishable.
func (s *Scraper) productKey(obs *scrape.Observation) string {
	switch {
	case obs.EAN != "":
		return s.store + "_" + obs.EAN
	case obs.SKU != "":
		return s.store + "_" + obs.SKU
	default:
		return s.store + "_unknown"
	}
}

func (s *Scraper) extractStructured(doc *goquery.Document, url string) *scrape.Observation {
	product, ok := scrape.JSONLD(doc, "Product")
	if !ok {
		return nil
	}

	offers := scrape.Offers(product)

	obs := &scrape.Observation{
		Name:      strings.TrimSpace(scrape.Str(product, "name")),
		URL:       url,
		Store:     s.store,
		Available: scrape.InStock(scrape.Str(offers, "availability")),
	}
	if price, ok := scrape.Num(offers, "price"); ok {
		obs.CurrentPrice = scrape.Float(price)
	}

	// EAN lives in a different field depending on the store theme
	for _, source := range []map[string]any{product, offers} {
		for _, field := range []string{"gtin13", "gtin", "mpn"} {
			if obs.EAN == "" {
				obs.EAN = scrape.Str(source, field)
			}
		}
	}
	if sku := scrape.Str(offers, "sku"); sku != "" {
		obs.SKU = sku
	} else {
		obs.SKU = scrape.Str(product, "sku")
	}

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}

func (s *Scraper) extractFallback(doc *goquery.Document, url string) *scrape.Observation {
	obs := &scrape.Observation{URL: url, Store: s.store, Available: true}
	obs.Name = htmlutil.CleanText(doc.Find("h1").First().Text())

	for _, selector := range []string{
		".price__current",
		".product__price",
		".price-item--regular",
		"[data-product-price]",
	} {
		if price, ok := scrape.ParsePrice(doc.Find(selector).First().Text()); ok {
			obs.CurrentPrice = scrape.Float(price)
			break
		}
	}

	if doc.Find(".sold-out, .product--sold-out, [data-sold-out='true']").Length() > 0 {
		obs.Available = false
	}

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}
