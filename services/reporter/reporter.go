// Package reporter builds the periodic analysis report: a full
// per-product analysis plus portfolio-level insights, rendered to HTML
// for email and saved as a JSON artifact.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/analyzer"
	"pricewatch-backend/services/history"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/reporter")

const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentMixed   = "mixed"
	SentimentUnknown = "unknown"
)

type RecentDeal struct {
	Product string  `json:"product"`
	Price   float64 `json:"price"`
	DaysAgo int     `json:"days_ago"`
}

type Summary struct {
	ProductsTracked       int            `json:"total_products_tracked"`
	TotalSavingsPotential float64        `json:"total_savings_potential"`
	PriceTrends           map[string]int `json:"price_trends"`
	RecentBestDeals       []RecentDeal   `json:"recent_best_deals"`
	MarketSentiment       string         `json:"market_sentiment"`
}

type Report struct {
	Date     string                               `json:"report_date"`
	Period   string                               `json:"report_period"`
	Products map[string]*analyzer.ProductAnalysis `json:"products"`
	Summary  Summary                              `json:"summary"`
}

// Generate builds the comprehensive report for every analyzable
// product in the store.
func Generate(ctx context.Context, store *history.Store, now time.Time) (*Report, error) {
	_, span := tracer.Start(ctx, "Generate")
	defer span.End()

	if len(store.Products) == 0 {
		err := fmt.Errorf("no price history data available")
		span.SetStatus(codes.Error, "empty store")
		return nil, err
	}

	report := &Report{
		Date:     now.Format(timezone.DateLayout),
		Period:   reportPeriod(now),
		Products: map[string]*analyzer.ProductAnalysis{},
	}

	var analyses []*analyzer.ProductAnalysis
	for key, product := range store.Products {
		analysis, err := analyzer.AnalyzeProduct(key, product, now)
		if err != nil {
			slog.WarnContext(ctx, "skipping product in report", "product", key, "err", err)
			continue
		}
		report.Products[key] = analysis
		analyses = append(analyses, analysis)
	}
	if len(analyses) == 0 {
		return nil, fmt.Errorf("no products with usable price history")
	}

	report.Summary = summarize(analyses)
	return report, nil
}

// reportPeriod names the period the report covers. Runs in January,
// April, July, and October produce the previous quarter's report;
// other months produce the previous month's.
func reportPeriod(now time.Time) string {
	switch now.Month() {
	case time.January:
		return fmt.Sprintf("Q4 %d Quarterly Report", now.Year()-1)
	case time.April:
		return fmt.Sprintf("Q1 %d Quarterly Report", now.Year())
	case time.July:
		return fmt.Sprintf("Q2 %d Quarterly Report", now.Year())
	case time.October:
		return fmt.Sprintf("Q3 %d Quarterly Report", now.Year())
	}
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
	return fmt.Sprintf("%s %d Monthly Report", prev.Month().String(), prev.Year())
}

func summarize(analyses []*analyzer.ProductAnalysis) Summary {
	trends := map[string]int{
		analyzer.TrendIncreasing: 0,
		analyzer.TrendDecreasing: 0,
		analyzer.TrendStable:     0,
	}
	var (
		savings float64
		deals   []RecentDeal
	)

	for _, a := range analyses {
		if diff := a.Stats.CurrentPrice - a.Stats.LowestPrice; diff > 0 {
			savings += diff
		}
		trends[a.Trend.Direction]++
		if len(a.BestDeals) > 0 {
			deals = append(deals, RecentDeal{
				Product: a.Name,
				Price:   a.BestDeals[0].Price,
				DaysAgo: a.BestDeals[0].DaysAgo,
			})
		}
	}

	sort.SliceStable(deals, func(i, j int) bool { return deals[i].DaysAgo < deals[j].DaysAgo })
	if len(deals) > 3 {
		deals = deals[:3]
	}

	return Summary{
		ProductsTracked:       len(analyses),
		TotalSavingsPotential: round2(savings),
		PriceTrends:           trends,
		RecentBestDeals:       deals,
		MarketSentiment: sentiment(
			trends[analyzer.TrendIncreasing],
			trends[analyzer.TrendDecreasing],
			len(analyses),
		),
	}
}

// sentiment summarizes where tracked prices are heading overall:
// bullish when most are rising, bearish when most are falling.
func sentiment(up, down, total int) string {
	if total == 0 {
		return SentimentUnknown
	}
	upPct := float64(up) / float64(total) * 100
	downPct := float64(down) / float64(total) * 100
	switch {
	case upPct > 60:
		return SentimentBullish
	case downPct > 60:
		return SentimentBearish
	default:
		return SentimentMixed
	}
}

// SaveArtifact writes the report JSON next to the history files so a
// run leaves an inspectable trail.
func SaveArtifact(report *Report, dir string, now time.Time) (string, error) {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("price_analysis_%s.json", now.Format("2006-01-02_15-04-05")))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Subject is the email subject line for a generated report.
func Subject(report *Report) string {
	return fmt.Sprintf("%s - %d Products Analyzed", report.Period, report.Summary.ProductsTracked)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
