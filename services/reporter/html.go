package reporter

import (
	"fmt"
	"html/template"
	"strings"
)

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f EUR", v) },
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}).Parse(`<html>
<head><style>
body { font-family: Arial, sans-serif; margin: 20px; line-height: 1.6; }
.header { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; margin-bottom: 20px; }
.stat { display: inline-block; background-color: #f8f9fa; padding: 15px 25px; margin: 5px; border-radius: 8px; text-align: center; }
.stat-number { font-size: 24px; font-weight: bold; color: #2c3e50; }
.stat-label { font-size: 12px; color: #7f8c8d; }
.product { background-color: #f8f9fa; padding: 20px; margin: 15px 0; border-radius: 8px; border-left: 4px solid #3498db; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #bdc3c7; color: #7f8c8d; font-size: 12px; }
</style></head>
<body>
<div class="header">
  <h1>Price Analysis Report</h1>
  <p>{{.Period}} &bull; Generated {{.Date}}</p>
</div>

<div>
  <div class="stat">
    <div class="stat-number">{{.Summary.ProductsTracked}}</div>
    <div class="stat-label">Products Tracked</div>
  </div>
  <div class="stat">
    <div class="stat-number">{{money .Summary.TotalSavingsPotential}}</div>
    <div class="stat-label">Savings Potential</div>
  </div>
  <div class="stat">
    <div class="stat-number">{{title .Summary.MarketSentiment}}</div>
    <div class="stat-label">Market Sentiment</div>
  </div>
</div>

{{if .Summary.RecentBestDeals}}
<h2>Recent Best Deals</h2>
<ul>
{{range .Summary.RecentBestDeals}}<li>{{.Product}}: {{money .Price}} ({{.DaysAgo}} days ago)</li>{{end}}
</ul>
{{end}}

<h2>Products</h2>
{{range $key, $a := .Products}}
<div class="product">
  <h3>{{$a.Name}}</h3>
  <p>
    Current {{money $a.Stats.CurrentPrice}} &middot;
    Lowest {{money $a.Stats.LowestPrice}} &middot;
    Highest {{money $a.Stats.HighestPrice}} &middot;
    Average {{money $a.Stats.AveragePrice}}
  </p>
  <p>Trend: {{title $a.Trend.Direction}} (strength {{$a.Trend.Strength}})</p>
  {{if eq $a.Seasonal.Analysis "available"}}
  <p>Best month: {{$a.Seasonal.BestMonth.Month}} ({{money $a.Seasonal.BestMonth.AveragePrice}})</p>
  {{end}}
  <p><a href="{{$a.PurchaseURL}}">{{$a.PurchaseURL}}</a></p>
</div>
{{end}}

<div class="footer"><p>Automated analysis from your price tracker.</p></div>
</body>
</html>`))

// RenderHTML renders the emailable version of the report.
func RenderHTML(report *Report) (string, error) {
	var b strings.Builder
	err := reportTmpl.Execute(&b, report)
	return b.String(), err
}
