// Package fitnesstukku scrapes fitnesstukku.fi product pages. The site
// publishes its product detail through a Google Analytics dataLayer push,
// which is far more stable than the rendered markup.
package fitnesstukku

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

var tracer = otel.Tracer("scrapers/fitnesstukku")

const BaseURL = "https://www.fitnesstukku.fi"

type Scraper struct {
	http *resty.Client
}

func New() *Scraper {
	return &Scraper{
		http: scrape.NewClient(BaseURL, "scrapers/fitnesstukku/http"),
	}
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
		return nil, fmt.Errorf("fitnesstukku returned %s for %s", res.Status(), ref.URL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}

	obs := extractDataLayer(doc, ref.URL)
	if obs == nil {
		obs = extractFallback(doc, ref.URL)
	}
	if obs == nil {
		slog.DebugContext(ctx, "no product data on page", "url", ref.URL)
		return nil, nil
	}

	obs.Key = ProductKey(obs)
	return obs, nil
}

func extractDataLayer(doc *goquery.Document, url string) *scrape.Observation {
	obj, ok := scrape.DataLayer(doc, "productDetail")
	if !ok {
		return nil
	}
	ecommerce, _ := obj["ecommerce"].(map[string]any)
	detail, _ := ecommerce["detail"].(map[string]any)
	products, _ := detail["products"].([]any)
	if len(products) == 0 {
		return nil
	}
	product, _ := products[0].(map[string]any)
	if product == nil {
		return nil
	}

	obs := &scrape.Observation{
		Name: strings.TrimSpace(scrape.Str(product, "name")),
		URL:  url,
	}
	if price, ok := scrape.Num(product, "price"); ok {
		obs.CurrentPrice = scrape.Float(price)
	}
	obs.Available = strings.Contains(
		strings.ToUpper(scrape.Str(product, "availability")), "IN STOCK",
	)
	if id := scrape.Str(product, "id"); id != "" {
		obs.SKU = id
	}

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}

func extractFallback(doc *goquery.Document, url string) *scrape.Observation {
	obs := &scrape.Observation{URL: url, Available: true}
	obs.Name = htmlutil.CleanText(doc.Find("h1.product-name, h1").First().Text())

	for _, selector := range []string{".price-sales", ".product-price", ".price"} {
		if price, ok := scrape.ParsePrice(doc.Find(selector).First().Text()); ok {
			obs.CurrentPrice = scrape.Float(price)
			break
		}
	}
	for _, selector := range []string{".price-standard", ".price-original"} {
		if original, ok := scrape.ParsePrice(doc.Find(selector).First().Text()); ok {
			obs.OriginalPrice = scrape.Float(original)
			break
		}
	}
	if obs.OriginalPrice != nil && obs.CurrentPrice != nil {
		obs.DiscountPercent = scrape.DiscountPercent(*obs.OriginalPrice, *obs.CurrentPrice)
	}

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}

// ProductKey prefers the catalog id from the dataLayer (e.g. "5854R"),
// falling back to the URL slug.
func ProductKey(obs *scrape.Observation) string {
	if obs.SKU != "" {
		return "id_fitnesstukku_" + obs.SKU
	}
	parts := strings.Split(strings.TrimSuffix(obs.URL, ".html"), "/")
	slug := parts[len(parts)-1]
	if slug == "" {
		slug = "unknown"
	}
	return "url_fitnesstukku_" + slug
}
