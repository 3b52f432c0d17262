// Package tokmanni scrapes tokmanni.fi, a custom platform that still
// serves JSON-LD but stores the EAN in the sku/mpn fields instead of
// gtin13. The EAN is also the last dash-separated segment of the
// product URL, which the CSS fallback relies on.
package tokmanni

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

var tracer = otel.Tracer("scrapers/tokmanni")

const BaseURL = "https://www.tokmanni.fi"

type Scraper struct {
	http *resty.Client
}

func New() *Scraper {
	return &Scraper{http: scrape.NewClient(BaseURL, "scrapers/tokmanni/http")}
}

func (s *Scraper) Store() string {
	return "tokmanni"
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
		return nil, fmt.Errorf("tokmanni returned %s for %s", res.Status(), ref.URL)
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
		slog.DebugContext(ctx, "no product data on page", "store", "tokmanni", "url", ref.URL)
		return nil, nil
	}

	obs.Key = ProductKey(obs)
	return obs, nil
}

// ProductKey keys tokmanni products by EAN, falling back to SKU.
func ProductKey(obs *scrape.Observation) string {
	switch {
	case obs.EAN != "":
		return "tokmanni_" + obs.EAN
	case obs.SKU != "":
		return "tokmanni_" + obs.SKU
	default:
		return "tokmanni_unknown"
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
		Store:     "tokmanni",
		SKU:       scrape.Str(product, "sku"),
		Available: scrape.InStock(scrape.Str(offers, "availability")),
	}
	if price, ok := scrape.Num(offers, "price"); ok {
		obs.CurrentPrice = scrape.Float(price)
	}

	obs.EAN = scrape.Str(product, "sku")
	if obs.EAN == "" {
		obs.EAN = scrape.Str(product, "mpn")
	}

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}

func (s *Scraper) extractFallback(doc *goquery.Document, url string) *scrape.Observation {
	obs := &scrape.Observation{URL: url, Store: "tokmanni", Available: true}

	for _, selector := range []string{"h1.product-name", ".product-title", "h1"} {
		if name := htmlutil.CleanText(doc.Find(selector).First().Text()); name != "" {
			obs.Name = name
			break
		}
	}
	for _, selector := range []string{".product-price", ".price", "[data-price]", ".current-price"} {
		if price, ok := scrape.ParsePrice(doc.Find(selector).First().Text()); ok {
			obs.CurrentPrice = scrape.Float(price)
			break
		}
	}
	obs.EAN = eanFromURL(url)

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}

// eanFromURL extracts a 13-digit EAN from the last dash-separated
// segment of a product URL, the usual tokmanni.fi URL shape.
func eanFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	idx := strings.LastIndex(trimmed, "-")
	if idx < 0 {
		return ""
	}
	tail := trimmed[idx+1:]
	if len(tail) != 13 {
		return ""
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return tail
}
