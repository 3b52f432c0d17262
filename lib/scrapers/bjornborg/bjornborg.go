// Package bjornborg scrapes bjornborg.com product pages. JSON-LD Product
// schemas are the primary source; CSS selectors are only a fallback for
// pages where the structured data is missing or incomplete.
package bjornborg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"pricewatch-backend/lib/htmlutil"
	"pricewatch-backend/lib/scrape"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/bjornborg")

const BaseURL = "https://www.bjornborg.com"

type Scraper struct {
	http *resty.Client
}

func New() *Scraper {
	return &Scraper{
		http: scrape.NewClient(BaseURL, "scrapers/bjornborg/http"),
	}
}

// skuBaseCode matches the catalog code prefix of SKUs like "10004564_MP001".
var skuBaseCode = regexp.MustCompile(`^(\d+)_`)

// urlProductID matches product ids in URLs like
// /fi/essential-socks-10-pack-10004564-mp001/.
var urlProductID = regexp.MustCompile(`-(\d+)-mp\d+`)

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
		return nil, fmt.Errorf("bjornborg returned %s for %s", res.Status(), ref.URL)
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
		slog.DebugContext(ctx, "no product data on page", "url", ref.URL)
		return nil, nil
	}

	obs.Key = ProductKey(obs)
	return obs, nil
}

func (s *Scraper) extractStructured(doc *goquery.Document, url string) *scrape.Observation {
	product, ok := scrape.JSONLD(doc, "Product")
	if !ok {
		return nil
	}

	obs := &scrape.Observation{
		Name: strings.TrimSpace(scrape.Str(product, "name")),
		URL:  url,
	}

	offers := scrape.Offers(product)
	if price, ok := scrape.Num(offers, "price"); ok {
		obs.CurrentPrice = scrape.Float(price)
	}
	obs.Available = scrape.InStock(scrape.Str(offers, "availability"))

	if sku := scrape.Str(product, "sku"); sku != "" {
		obs.SKU = sku
	}

	// the struck-through price only lives in the markup
	if obs.OriginalPrice == nil {
		for _, selector := range []string{
			`[data-testid="original-price"]`,
			".price-original",
			".original-price",
			".price .original",
		} {
			text := htmlutil.CleanText(doc.Find(selector).First().Text())
			if original, ok := scrape.ParsePrice(text); ok {
				if obs.CurrentPrice == nil || original != *obs.CurrentPrice {
					obs.OriginalPrice = scrape.Float(original)
					break
				}
			}
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

func (s *Scraper) extractFallback(doc *goquery.Document, url string) *scrape.Observation {
	obs := &scrape.Observation{URL: url, Available: true}

	obs.Name = htmlutil.CleanText(doc.Find("h1").First().Text())

	for _, selector := range []string{
		`[data-testid="product-price"]`,
		".product-price",
		".price-current",
		".price",
	} {
		if price, ok := scrape.ParsePrice(doc.Find(selector).First().Text()); ok {
			obs.CurrentPrice = scrape.Float(price)
			break
		}
	}
	if obs.CurrentPrice == nil {
		// last resort: embedded json blobs in scripts
		if price, ok := priceFromScripts(doc); ok {
			obs.CurrentPrice = scrape.Float(price)
		}
	}

	if obs.Name == "" || obs.CurrentPrice == nil {
		return nil
	}
	return obs
}

var scriptPrice = regexp.MustCompile(`"price":\s*(\d+\.?\d*)`)

func priceFromScripts(doc *goquery.Document) (float64, bool) {
	price := 0.0
	found := false
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(sel.Nodes) == 0 {
			return true
		}
		m := scriptPrice.FindStringSubmatch(htmlutil.GetText(sel.Nodes[0]))
		if len(m) < 2 {
			return true
		}
		if p, ok := scrape.ParsePrice(m[1]); ok {
			price, found = p, true
			return false
		}
		return true
	})
	return price, found
}

// ProductKey derives the stable identity for a Björn Borg observation.
// Preference order: base catalog code (stable across multipack variants),
// then the product id in the URL, then the URL itself.
func ProductKey(obs *scrape.Observation) string {
	if m := skuBaseCode.FindStringSubmatch(obs.SKU); len(m) == 2 {
		return "base_" + m[1]
	}
	if m := urlProductID.FindStringSubmatch(obs.URL); len(m) == 2 {
		return "base_" + m[1]
	}
	return "url_" + obs.URL
}
