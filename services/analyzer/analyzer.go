// Package analyzer derives trends, deals, and seasonal patterns from
// event-based price history. All computations work on the change events
// themselves; because identical days never produce events, every event
// price is a price the product actually held.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"pricewatch-backend/lib/timezone"
	"pricewatch-backend/services/history"
)

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"

	AnalysisAvailable        = "available"
	AnalysisInsufficientData = "insufficient_data"
)

type Trend struct {
	Direction       string  `json:"trend"`
	Strength        float64 `json:"trend_strength"`
	TotalChange     float64 `json:"total_change"`
	TotalChangePct  float64 `json:"total_change_percent"`
	RecentChange    float64 `json:"recent_change"`
	RecentChangePct float64 `json:"recent_change_percent"`
	Analysis        string  `json:"analysis"`
}

type Deal struct {
	Price   float64 `json:"price"`
	Date    string  `json:"date"`
	DaysAgo int     `json:"days_ago"`
}

type MonthAverage struct {
	Month        string  `json:"month"`
	AveragePrice float64 `json:"average_price"`
}

type Seasonal struct {
	Analysis          string             `json:"analysis"`
	MonthlyAverages   map[string]float64 `json:"monthly_averages,omitempty"`
	BestMonth         *MonthAverage      `json:"best_month,omitempty"`
	WorstMonth        *MonthAverage      `json:"worst_month,omitempty"`
	SeasonalVariation float64            `json:"seasonal_variation,omitempty"`
}

type Stats struct {
	CurrentPrice float64 `json:"current_price"`
	LowestPrice  float64 `json:"lowest_price"`
	HighestPrice float64 `json:"highest_price"`
	AveragePrice float64 `json:"average_price"`
	Volatility   float64 `json:"price_volatility"`
	DataPoints   int     `json:"total_data_points"`
}

type Period struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

type ProductAnalysis struct {
	Key         string   `json:"key"`
	Name        string   `json:"product_name"`
	PurchaseURL string   `json:"purchase_url"`
	Stats       Stats    `json:"price_statistics"`
	Trend       Trend    `json:"trends"`
	BestDeals   []Deal   `json:"best_deals"`
	Seasonal    Seasonal `json:"seasonal_patterns"`
	Period      Period   `json:"tracking_period"`
}

type PriceRanges struct {
	LowestCurrent  float64 `json:"lowest_current_price"`
	HighestCurrent float64 `json:"highest_current_price"`
	AverageCurrent float64 `json:"average_current_price"`
}

type Portfolio struct {
	ProductsAnalyzed      int            `json:"total_products_analyzed"`
	TotalSavingsPotential float64        `json:"total_savings_potential"`
	TrendDistribution     map[string]int `json:"trend_distribution"`
	PriceRanges           PriceRanges    `json:"price_ranges"`
}

type pricePoint struct {
	price float64
	date  string
}

func eventPrices(changes []history.PriceChange) []pricePoint {
	points := make([]pricePoint, 0, len(changes))
	for _, c := range changes {
		if p := c.EffectivePrice(); p > 0 {
			points = append(points, pricePoint{price: p, date: c.Date})
		}
	}
	return points
}

// AnalyzeTrend classifies overall direction from the first event price
// to the last. "Recent change" is the delta of the single most recent
// change event, not a rolling window.
func AnalyzeTrend(changes []history.PriceChange) Trend {
	points := eventPrices(changes)
	if len(points) < 2 {
		return Trend{Direction: TrendStable, Analysis: AnalysisInsufficientData}
	}

	first, last := points[0].price, points[len(points)-1].price
	totalChange := last - first
	totalPct := totalChange / first * 100

	direction := TrendStable
	switch {
	case math.Abs(totalPct) < 1:
	case totalPct > 0:
		direction = TrendIncreasing
	default:
		direction = TrendDecreasing
	}

	t := Trend{
		Direction:      direction,
		Strength:       round1(math.Min(math.Abs(totalPct)*10, 100)),
		TotalChange:    round2(totalChange),
		TotalChangePct: round1(totalPct),
		Analysis:       AnalysisAvailable,
	}
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.IsInitial() || c.From == nil || c.To == nil {
			continue
		}
		t.RecentChange = round2(*c.To - *c.From)
		if c.ChangePct != nil {
			t.RecentChangePct = *c.ChangePct
		}
		break
	}
	return t
}

// BestDeals lists up to three cheapest event prices, ascending. The
// all-time lowest occupies the first slot when it is not already one of
// them, since retention may have pruned the event that set it.
func BestDeals(changes []history.PriceChange, lowest *history.AllTimeLowest, now time.Time) []Deal {
	points := eventPrices(changes)
	sort.SliceStable(points, func(i, j int) bool { return points[i].price < points[j].price })

	deals := make([]Deal, 0, 3)
	for _, p := range points {
		if len(deals) == 3 {
			break
		}
		deals = append(deals, Deal{Price: p.price, Date: p.date, DaysAgo: daysAgo(p.date, now)})
	}

	if lowest != nil {
		represented := false
		for _, d := range deals {
			if d.Price == lowest.Price && d.Date == lowest.Date {
				represented = true
				break
			}
		}
		if !represented {
			atl := Deal{Price: lowest.Price, Date: lowest.Date, DaysAgo: daysAgo(lowest.Date, now)}
			deals = append([]Deal{atl}, deals...)
			if len(deals) > 3 {
				deals = deals[:3]
			}
		}
	}
	return deals
}

// SeasonalPatterns buckets event prices by calendar month name. Months
// merge across years; January 2025 and January 2026 land in the same
// bucket. Requires at least 3 events across at least 2 distinct months.
func SeasonalPatterns(changes []history.PriceChange) Seasonal {
	points := eventPrices(changes)
	if len(points) < 3 {
		return Seasonal{Analysis: AnalysisInsufficientData}
	}

	buckets := map[string][]float64{}
	for _, p := range points {
		d, err := time.Parse(timezone.DateLayout, p.date)
		if err != nil {
			continue
		}
		month := d.Month().String()
		buckets[month] = append(buckets[month], p.price)
	}
	if len(buckets) < 2 {
		return Seasonal{Analysis: AnalysisInsufficientData}
	}

	averages := map[string]float64{}
	var best, worst *MonthAverage
	for month, prices := range buckets {
		avg := round2(mean(prices))
		averages[month] = avg
		if best == nil || avg < best.AveragePrice {
			best = &MonthAverage{Month: month, AveragePrice: avg}
		}
		if worst == nil || avg > worst.AveragePrice {
			worst = &MonthAverage{Month: month, AveragePrice: avg}
		}
	}

	return Seasonal{
		Analysis:          AnalysisAvailable,
		MonthlyAverages:   averages,
		BestMonth:         best,
		WorstMonth:        worst,
		SeasonalVariation: round2(worst.AveragePrice - best.AveragePrice),
	}
}

// AnalyzeProduct runs the full analysis for one product.
func AnalyzeProduct(key string, product *history.ProductHistory, now time.Time) (*ProductAnalysis, error) {
	points := eventPrices(product.PriceChanges)
	if len(points) == 0 {
		return nil, fmt.Errorf("no usable price events for %s", key)
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.price
	}

	stats := Stats{
		CurrentPrice: product.Current.Price,
		LowestPrice:  minOf(prices),
		HighestPrice: maxOf(prices),
		AveragePrice: round2(mean(prices)),
		Volatility:   round2(stddev(prices)),
		DataPoints:   len(prices),
	}
	if product.AllTimeLowest != nil && product.AllTimeLowest.Price < stats.LowestPrice {
		stats.LowestPrice = product.AllTimeLowest.Price
	}

	return &ProductAnalysis{
		Key:         key,
		Name:        product.Name,
		PurchaseURL: product.PurchaseURL,
		Stats:       stats,
		Trend:       AnalyzeTrend(product.PriceChanges),
		BestDeals:   BestDeals(product.PriceChanges, product.AllTimeLowest, now),
		Seasonal:    SeasonalPatterns(product.PriceChanges),
		Period:      Period{Start: points[0].date, End: points[len(points)-1].date},
	}, nil
}

// PortfolioInsights aggregates across every analyzable product.
func PortfolioInsights(products map[string]*history.ProductHistory, now time.Time) (*Portfolio, error) {
	trendCounts := map[string]int{TrendIncreasing: 0, TrendDecreasing: 0, TrendStable: 0}
	var (
		analyzed int
		savings  float64
		currents []float64
	)

	for key, product := range products {
		analysis, err := AnalyzeProduct(key, product, now)
		if err != nil {
			continue
		}
		analyzed++
		if diff := analysis.Stats.CurrentPrice - analysis.Stats.LowestPrice; diff > 0 {
			savings += diff
		}
		trendCounts[analysis.Trend.Direction]++
		currents = append(currents, analysis.Stats.CurrentPrice)
	}
	if analyzed == 0 {
		return nil, fmt.Errorf("no products with usable price history")
	}

	return &Portfolio{
		ProductsAnalyzed:      analyzed,
		TotalSavingsPotential: round2(savings),
		TrendDistribution:     trendCounts,
		PriceRanges: PriceRanges{
			LowestCurrent:  minOf(currents),
			HighestCurrent: maxOf(currents),
			AverageCurrent: round2(mean(currents)),
		},
	}, nil
}

func daysAgo(date string, now time.Time) int {
	d, err := time.Parse(timezone.DateLayout, date)
	if err != nil {
		return 0
	}
	return int(now.Sub(d).Hours() / 24)
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func stddev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	m := mean(vs)
	sum := 0.0
	for _, v := range vs {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(vs)-1))
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
