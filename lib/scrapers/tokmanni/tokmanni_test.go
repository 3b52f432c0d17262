package tokmanni

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Ariel Pyykinpesujauhe 1,1 kg",
  "sku": "8006540921456",
  "mpn": "8006540921456",
  "offers": {
    "@type": "Offer",
    "price": "7.99",
    "priceCurrency": "EUR",
    "availability": "https://schema.org/InStock"
  }
}
</script>
</head><body><h1 class="product-name">Ariel Pyykinpesujauhe 1,1 kg</h1></body></html>`

func TestExtractStructured(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(productPage))
	require.NoError(t, err)

	s := New()
	obs := s.extractStructured(doc, "https://www.tokmanni.fi/ariel-pyykinpesujauhe-8006540921456")
	require.NotNil(t, obs)
	require.Equal(t, "Ariel Pyykinpesujauhe 1,1 kg", obs.Name)
	require.Equal(t, "8006540921456", obs.EAN)
	require.Equal(t, 7.99, *obs.CurrentPrice)
	require.True(t, obs.Available)
}

func TestExtractFallbackEANFromURL(t *testing.T) {
	page := `<html><body>
<h1 class="product-name">Ariel Pyykinpesujauhe 1,1 kg</h1>
<span class="product-price">7,99</span>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	s := New()
	obs := s.extractFallback(doc, "https://www.tokmanni.fi/ariel-pyykinpesujauhe-8006540921456")
	require.NotNil(t, obs)
	require.Equal(t, "8006540921456", obs.EAN)
	require.True(t, obs.Available)
}

func TestEANFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.tokmanni.fi/ariel-pyykinpesujauhe-8006540921456", "8006540921456"},
		{"https://www.tokmanni.fi/ariel-pyykinpesujauhe-8006540921456/", "8006540921456"},
		{"https://www.tokmanni.fi/ariel-pyykinpesujauhe-123", ""},
		{"https://www.tokmanni.fi/tuote", ""},
	}
	for _, c := range cases {
		if got := eanFromURL(c.url); got != c.want {
			t.Fatalf("eanFromURL(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}
