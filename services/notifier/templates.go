package notifier

import (
	"fmt"
	"html/template"
	"strings"
)

// ProductChange is one single-store price movement for the alert email.
type ProductChange struct {
	Name          string
	CurrentPrice  float64
	PreviousPrice float64
	ChangePct     float64
	OriginalPrice *float64
	PurchaseURL   string
}

func (c ProductChange) IsDrop() bool {
	return c.CurrentPrice < c.PreviousPrice
}

func (c ProductChange) ChangeAmount() float64 {
	return c.CurrentPrice - c.PreviousPrice
}

func (c ProductChange) TotalDiscountPct() float64 {
	if c.OriginalPrice == nil || *c.OriginalPrice <= c.CurrentPrice {
		return 0
	}
	return (*c.OriginalPrice - c.CurrentPrice) / *c.OriginalPrice * 100
}

// NewVariant is a product found by listing discovery that is not yet
// tracked.
type NewVariant struct {
	Name string
	URL  string
}

// StorePrice is one store's offer in an EAN drop email.
type StorePrice struct {
	Store     string
	Price     *float64
	Available bool
}

// EANDrop is one cross-store price drop for the alert email.
type EANDrop struct {
	EAN          string
	Name         string
	Today        float64
	Previous     float64
	Savings      float64
	Store        string
	URL          string
	BestEver     bool
	AllTimePrice *float64
	AllTimeStore string
	StorePrices  []StorePrice
}

var funcs = template.FuncMap{
	"deref": func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	},
	"money": func(v float64) string { return fmt.Sprintf("%.2f EUR", v) },
	"signed": func(v float64) string {
		return fmt.Sprintf("%+.2f", v)
	},
	"signedPct": func(v float64) string {
		return fmt.Sprintf("%+.1f%%", v)
	},
	"pct0": func(v float64) string {
		return fmt.Sprintf("%.0f%%", v)
	},
}

const baseStyle = `body { font-family: Arial, sans-serif; margin: 20px; line-height: 1.6; }
.header { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; margin-bottom: 20px; }
.product { background-color: #f8f9fa; padding: 20px; margin: 15px 0; border-radius: 8px; border-left: 4px solid #3498db; }
.price-drop { border-left-color: #27ae60; background-color: #f0f9f4; }
.price-increase { border-left-color: #e74c3c; background-color: #fdf2f2; }
.price { font-size: 20px; font-weight: bold; margin: 10px 0; }
.old-price { text-decoration: line-through; color: #7f8c8d; }
.discount { color: #27ae60; font-weight: bold; }
.purchase-btn { display: inline-block; background-color: #3498db; color: white !important; padding: 12px 25px; text-decoration: none; border-radius: 6px; margin-top: 15px; font-weight: bold; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #bdc3c7; color: #7f8c8d; font-size: 12px; }`

var priceAlertTmpl = template.Must(template.New("priceAlert").Funcs(funcs).Parse(`<html>
<head><style>` + baseStyle + `</style></head>
<body>
<div class="header">
  <h1>Price Alert</h1>
  <p>Price changes detected for your tracked products.</p>
</div>
{{range .Changes}}
<div class="product {{if .IsDrop}}price-drop{{else}}price-increase{{end}}">
  <h2>{{.Name}}</h2>
  <p><strong>{{if .IsDrop}}PRICE DROP!{{else}}Price Increase{{end}} {{signed .ChangeAmount}} EUR ({{signedPct .ChangePct}})</strong></p>
  <div class="price">Current Price: {{money .CurrentPrice}}</div>
  <div>Previous Price: <span class="old-price">{{money .PreviousPrice}}</span></div>
  {{if gt .TotalDiscountPct 0.0}}<div class="discount">Total Discount: {{pct0 .TotalDiscountPct}} off (originally {{money (deref .OriginalPrice)}})</div>{{end}}
  <div><a href="{{.PurchaseURL}}" class="purchase-btn">Buy Now</a></div>
</div>
{{end}}
{{if .Variants}}
<div class="product">
  <h2>New variants discovered</h2>
  <ul>
  {{range .Variants}}<li><a href="{{.URL}}">{{.Name}}</a></li>{{end}}
  </ul>
</div>
{{end}}
<div class="footer"><p>Automated by your price tracker.</p></div>
</body>
</html>`))

var eanDropTmpl = template.Must(template.New("eanDrop").Funcs(funcs).Parse(`<html>
<head><style>` + baseStyle + `</style></head>
<body>
<div class="header">
  <h1>Cross-Store Price Alert</h1>
  <p>The lowest available price dropped for your tracked products.</p>
</div>
{{range .}}
<div class="product price-drop">
  <h2>{{.Name}}</h2>
  {{if .BestEver}}<p class="discount"><strong>BEST PRICE EVER</strong></p>{{end}}
  <div class="price">Now {{money .Today}} at {{.Store}}</div>
  <div>Was <span class="old-price">{{money .Previous}}</span> (save {{money .Savings}})</div>
  {{if .AllTimePrice}}<div>All-time lowest: {{money (deref .AllTimePrice)}}{{if .AllTimeStore}} at {{.AllTimeStore}}{{end}}</div>{{end}}
  {{if .StorePrices}}
  <table style="margin-top: 10px; border-collapse: collapse;">
    <tr><th align="left">Store</th><th align="left">Price</th><th align="left">Stock</th></tr>
    {{range .StorePrices}}<tr>
      <td style="padding-right: 15px;">{{.Store}}</td>
      <td style="padding-right: 15px;">{{if .Price}}{{money (deref .Price)}}{{else}}-{{end}}</td>
      <td>{{if .Available}}In Stock{{else}}Out of Stock{{end}}</td>
    </tr>{{end}}
  </table>
  {{end}}
  <div><a href="{{.URL}}" class="purchase-btn">Buy Now</a></div>
  <div style="font-size: 12px; color: #7f8c8d;">EAN {{.EAN}}</div>
</div>
{{end}}
<div class="footer"><p>Automated by your price tracker.</p></div>
</body>
</html>`))

var failureTmpl = template.Must(template.New("failure").Parse(`<html>
<body style="font-family: Arial, sans-serif; margin: 20px;">
<div style="background-color: #fdf2f2; border-left: 4px solid #e74c3c; padding: 20px; border-radius: 8px;">
  <h2 style="color: #e74c3c;">Scraper Health Alert</h2>
  <p><strong>The {{.Monitor}} monitor failed to observe any product.</strong></p>
  <div style="background-color: #fff; padding: 15px; border-radius: 4px;">
    <h3>Details</h3>
    <pre style="background-color: #f8f9fa; padding: 10px; border-radius: 4px;">{{.Details}}</pre>
  </div>
  <h3>Possible Causes</h3>
  <ul>
    <li>Product URLs have changed</li>
    <li>Website structure updated</li>
    <li>Anti-bot measures blocking access</li>
    <li>Products out of stock or discontinued</li>
    <li>Network connectivity issues</li>
  </ul>
  <h3>Recommended Actions</h3>
  <ol>
    <li>Check the tracked products are still listed on their sites</li>
    <li>Verify the configured URLs are still valid</li>
    <li>Check the runner logs for detailed error messages</li>
    <li>Update the scrapers if needed</li>
  </ol>
</div>
<div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #bdc3c7; color: #7f8c8d; font-size: 12px;">
  <p>Automated alert from your price tracker.</p>
</div>
</body>
</html>`))

var testTmpl = template.Must(template.New("test").Parse(`<html>
<body style="font-family: Arial, sans-serif; margin: 20px;">
<h2>Test Email Successful</h2>
<p>This is a test email from your price tracker.</p>
<p><strong>Configuration is working correctly.</strong></p>
</body>
</html>`))

func renderPriceAlert(changes []ProductChange, variants []NewVariant) (string, error) {
	var b strings.Builder
	err := priceAlertTmpl.Execute(&b, struct {
		Changes  []ProductChange
		Variants []NewVariant
	}{changes, variants})
	return b.String(), err
}

func renderEANDropAlert(drops []EANDrop) (string, error) {
	var b strings.Builder
	err := eanDropTmpl.Execute(&b, drops)
	return b.String(), err
}

func renderFailureAlert(monitor, details string) (string, error) {
	var b strings.Builder
	err := failureTmpl.Execute(&b, struct {
		Monitor string
		Details string
	}{monitor, details})
	return b.String(), err
}

func renderTestEmail() (string, error) {
	var b strings.Builder
	err := testTmpl.Execute(&b, nil)
	return b.String(), err
}
