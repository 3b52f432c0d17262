package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"BreadcrumbList","itemListElement":[]}
</script>
<script type="application/ld+json">
[{"@type":"Organization","name":"Shop"},
 {"@type":"Product","name":"Essential Socks 10-pack","sku":"10004564_MP001",
  "offers":{"@type":"Offer","price":"35.96","availability":"https://schema.org/InStock","gtin13":"7321365584349"}}]
</script>
<script>
window.dataLayer = window.dataLayer || [];
dataLayer.push({"event":"productDetail","ecommerce":{"currencyCode":"EUR","detail":{"products":[{"id":"5854R","name":"Whey-80","price":"54.90","availability":"IN STOCK"}]}}});
</script>
</head><body></body></html>`

func mustDoc(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestJSONLDFindsProductInArray(t *testing.T) {
	doc := mustDoc(t, productPage)

	product, ok := JSONLD(doc, "Product")
	require.True(t, ok)
	require.Equal(t, "Essential Socks 10-pack", Str(product, "name"))

	offers := Offers(product)
	price, ok := Num(offers, "price")
	require.True(t, ok)
	require.Equal(t, 35.96, price)
	require.True(t, InStock(Str(offers, "availability")))
	require.Equal(t, "7321365584349", Str(offers, "gtin13"))
}

func TestJSONLDMissingType(t *testing.T) {
	doc := mustDoc(t, `<html><head><script type="application/ld+json">{"@type":"WebSite"}</script></head></html>`)

	_, ok := JSONLD(doc, "Product")
	require.False(t, ok)
}

func TestDataLayerProductDetail(t *testing.T) {
	doc := mustDoc(t, productPage)

	obj, ok := DataLayer(doc, "productDetail")
	require.True(t, ok)

	ecommerce, _ := obj["ecommerce"].(map[string]any)
	require.Equal(t, "EUR", Str(ecommerce, "currencyCode"))
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		found bool
	}{
		{"44,95 €", 44.95, true},
		{"EUR 35.96", 35.96, true},
		{"  29 € ", 29, true},
		{"1 234,56 €", 1234.56, true},
		{"1.234,56", 1234.56, true},
		{"1.234", 1234, true},
		{"sold out", 0, false},
		{"0", 0, false},
	}
	for _, c := range cases {
		got, ok := ParsePrice(c.in)
		require.Equal(t, c.found, ok, "input %q", c.in)
		if c.found {
			require.Equal(t, c.want, got, "input %q", c.in)
		}
	}
}

func TestDiscountPercent(t *testing.T) {
	pct := DiscountPercent(44.95, 35.96)
	require.NotNil(t, pct)
	require.Equal(t, 20.0, *pct)

	require.Nil(t, DiscountPercent(35.96, 44.95))
	require.Nil(t, DiscountPercent(0, 10))
}
