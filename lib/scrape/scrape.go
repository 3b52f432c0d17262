// Package scrape holds the boundary between the monitoring core and the
// per-site scrapers: the Observation type, the Source interface and the
// structured-data extraction helpers (JSON-LD, dataLayer) shared by every
// site implementation.
package scrape

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"pricewatch-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ProductRef identifies a configured product page to observe.
type ProductRef struct {
	Name string
	URL  string
}

// Observation is one scrape result for one product page. Optional numeric
// fields are pointers so "not published on the page" is distinguishable
// from zero.
type Observation struct {
	// Key is the stable product identity derived by the site scraper
	// (base catalog code > product id > SKU > URL).
	Key             string
	Name            string
	URL             string
	Store           string
	EAN             string
	SKU             string
	CurrentPrice    *float64
	OriginalPrice   *float64
	DiscountPercent *float64
	Available       bool
}

// Source is implemented by every site scraper.
//
// The result distinguishes three cases the caller must not conflate:
// (obs, nil) a successful observation, (nil, nil) the page yielded no
// usable product this cycle, and (nil, err) a transient failure such as
// a network error.
type Source interface {
	Observe(ctx context.Context, ref ProductRef) (*Observation, error)
}

// JSONLD returns the first JSON-LD object of the given @type found in the
// document. Both bare objects and arrays of objects are handled.
func JSONLD(doc *goquery.Document, schemaType string) (map[string]any, bool) {
	var found map[string]any

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		var single map[string]any
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			if Str(single, "@type") == schemaType {
				found = single
				return false
			}
			return true
		}

		var many []map[string]any
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			for _, item := range many {
				if Str(item, "@type") == schemaType {
					found = item
					return false
				}
			}
		}
		return true
	})

	return found, found != nil
}

var dataLayerPush = regexp.MustCompile(`dataLayer\.push\((\{.*?\})\)`)

// DataLayer extracts the first Google Analytics dataLayer.push object whose
// event matches the given name (typically "productDetail").
func DataLayer(doc *goquery.Document, event string) (map[string]any, bool) {
	var found map[string]any

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(s.Nodes) == 0 {
			return true
		}
		text := htmlutil.GetText(s.Nodes[0])
		if !strings.Contains(text, "dataLayer") {
			return true
		}

		for _, groups := range dataLayerPush.FindAllStringSubmatch(text, -1) {
			var obj map[string]any
			if err := json.Unmarshal([]byte(groups[1]), &obj); err != nil {
				continue
			}
			if Str(obj, "event") == event {
				found = obj
				return false
			}
		}
		return true
	})

	return found, found != nil
}

// Offers returns the offers object of a JSON-LD Product, unwrapping the
// single-element-array form some platforms emit.
func Offers(product map[string]any) map[string]any {
	switch offers := product["offers"].(type) {
	case map[string]any:
		return offers
	case []any:
		if len(offers) > 0 {
			if first, ok := offers[0].(map[string]any); ok {
				return first
			}
		}
	}
	return map[string]any{}
}

// InStock interprets a schema.org availability URL.
func InStock(availability string) bool {
	return strings.Contains(availability, "InStock")
}

func Str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Num reads a numeric field that may be encoded as a JSON number or a
// string, which JSON-LD price fields are in the wild.
func Num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		return ParsePrice(v)
	}
	return 0, false
}

// The first alternative consumes space- or dot-grouped thousands so
// "1 234,56" does not truncate to 1; plain amounts fall through to the
// second.
var priceDigits = regexp.MustCompile(`\d{1,3}(?:[ .]\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d{1,2})?`)

var dotThousands = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)

// ParsePrice pulls a price out of display text like "44,95 €",
// "EUR 35.96" or "1 234,56 €".
func ParsePrice(text string) (float64, bool) {
	cleaned := htmlutil.CleanText(text)
	m := strings.ReplaceAll(priceDigits.FindString(cleaned), " ", "")
	if m == "" {
		return 0, false
	}
	if strings.Contains(m, ",") {
		m = strings.ReplaceAll(m, ".", "")
		m = strings.ReplaceAll(m, ",", ".")
	} else if dotThousands.MatchString(m) {
		m = strings.ReplaceAll(m, ".", "")
	}
	value, err := strconv.ParseFloat(m, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// DiscountPercent derives the published discount from original vs current
// price, rounded to whole percent the way the shops print it.
func DiscountPercent(original, current float64) *float64 {
	if original <= current || original <= 0 {
		return nil
	}
	pct := float64(int((original-current)/original*100 + 0.5))
	return &pct
}

func Float(v float64) *float64 {
	return &v
}
