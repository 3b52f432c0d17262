package fitnesstukku

import (
	"strings"
	"testing"

	"pricewatch-backend/lib/scrape"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><head>
<script>
dataLayer.push({"event": "productDetail", "ecommerce": {"detail": {"products": [{"name": "Whey-80, 4 kg", "id": "5854R", "price": 89.9, "availability": "IN STOCK"}]}}});
</script>
</head><body>
<h1 class="product-name">Whey-80, 4 kg</h1>
<span class="price-sales">89,90 &euro;</span>
</body></html>`

func TestExtractDataLayer(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(productPage))
	require.NoError(t, err)

	obs := extractDataLayer(doc, "https://www.fitnesstukku.fi/whey-80-4-kg/5854R.html")
	require.NotNil(t, obs)
	require.Equal(t, "Whey-80, 4 kg", obs.Name)
	require.Equal(t, "5854R", obs.SKU)
	require.Equal(t, 89.9, *obs.CurrentPrice)
	require.True(t, obs.Available)
}

func TestExtractFallbackWithDiscount(t *testing.T) {
	page := `<html><body>
<h1 class="product-name">Creatine Monohydrate</h1>
<span class="price-sales">14,90</span>
<span class="price-standard">19,90</span>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	obs := extractFallback(doc, "https://www.fitnesstukku.fi/creatine/123.html")
	require.NotNil(t, obs)
	require.Equal(t, 14.9, *obs.CurrentPrice)
	require.Equal(t, 19.9, *obs.OriginalPrice)
	require.NotNil(t, obs.DiscountPercent)
	require.Equal(t, 25.0, *obs.DiscountPercent)
}

func TestProductKey(t *testing.T) {
	require.Equal(t, "id_fitnesstukku_5854R",
		ProductKey(&scrape.Observation{SKU: "5854R"}))
	require.Equal(t, "url_fitnesstukku_whey-80-4-kg",
		ProductKey(&scrape.Observation{URL: "https://www.fitnesstukku.fi/proteiini/whey-80-4-kg.html"}))
}
