package bjornborg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pricewatch-backend/lib/scrape"

	"github.com/PuerkitoBio/goquery"
)

// listing page holding every Essential multipack variant
const multipackListingPath = "/fi/men/socks/"

// DiscoverVariants scans the sock listing page for Essential 10-pack
// variants whose URL is not in tracked. Tracked URLs may be absolute or
// site-relative.
func (s *Scraper) DiscoverVariants(ctx context.Context, tracked map[string]bool) ([]scrape.ProductRef, error) {
	ctx, span := tracer.Start(ctx, "DiscoverVariants")
	defer span.End()

	known := make(map[string]bool, len(tracked))
	for url := range tracked {
		known[relativeURL(url)] = true
	}

	res, err := s.http.R().SetContext(ctx).Get(multipackListingPath)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("bjornborg listing returned %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}

	var variants []scrape.ProductRef
	seen := map[string]bool{}

	doc.Find(`a[href*="-mp0"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = relativeURL(href)
		if href == "" || seen[href] || known[href] {
			return
		}
		if !isEssentialTenPack(href) {
			return
		}
		seen[href] = true
		variants = append(variants, scrape.ProductRef{
			Name: strings.TrimSpace(sel.Text()),
			URL:  BaseURL + href,
		})
	})

	slog.InfoContext(ctx, "variant discovery finished", "found", len(variants))
	return variants, nil
}

func isEssentialTenPack(href string) bool {
	lower := strings.ToLower(href)
	return strings.Contains(lower, "essential") && strings.Contains(lower, "10-pack")
}

func relativeURL(url string) string {
	return strings.TrimPrefix(url, BaseURL)
}
