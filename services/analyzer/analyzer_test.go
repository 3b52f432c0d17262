package analyzer

import (
	"testing"
	"time"

	"pricewatch-backend/services/history"

	"github.com/stretchr/testify/require"
)

func initial(date string, price float64) history.PriceChange {
	return history.PriceChange{Date: date, Type: "initial", Price: &price}
}

func change(date string, from, to, pct float64) history.PriceChange {
	return history.PriceChange{Date: date, From: &from, To: &to, ChangePct: &pct}
}

func TestAnalyzeTrendInsufficientData(t *testing.T) {
	trend := AnalyzeTrend([]history.PriceChange{initial("2025-07-04", 20)})
	require.Equal(t, TrendStable, trend.Direction)
	require.Equal(t, AnalysisInsufficientData, trend.Analysis)

	trend = AnalyzeTrend(nil)
	require.Equal(t, AnalysisInsufficientData, trend.Analysis)
}

func TestAnalyzeTrendDirections(t *testing.T) {
	decreasing := []history.PriceChange{
		initial("2025-07-04", 44.95),
		change("2025-07-10", 44.95, 35.96, -20.0),
		change("2025-08-05", 35.96, 38.21, 6.3),
	}
	trend := AnalyzeTrend(decreasing)
	require.Equal(t, TrendDecreasing, trend.Direction)
	require.Equal(t, AnalysisAvailable, trend.Analysis)
	require.Equal(t, -6.74, trend.TotalChange)
	require.Equal(t, -15.0, trend.TotalChangePct)
	require.Equal(t, 100.0, trend.Strength)

	// recent change is the last change event, not a window
	require.Equal(t, 2.25, trend.RecentChange)
	require.Equal(t, 6.3, trend.RecentChangePct)

	stable := []history.PriceChange{
		initial("2025-07-04", 100),
		change("2025-07-10", 100, 100.5, 0.5),
	}
	require.Equal(t, TrendStable, AnalyzeTrend(stable).Direction)
	require.Equal(t, 5.0, AnalyzeTrend(stable).Strength)

	increasing := []history.PriceChange{
		initial("2025-07-04", 100),
		change("2025-07-10", 100, 110, 10.0),
	}
	require.Equal(t, TrendIncreasing, AnalyzeTrend(increasing).Direction)
}

func TestBestDealsCapAndOrder(t *testing.T) {
	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	changes := []history.PriceChange{
		initial("2025-07-01", 40),
		change("2025-07-05", 40, 30, -25.0),
		change("2025-07-10", 30, 35, 16.7),
		change("2025-07-20", 35, 32, -8.6),
	}

	deals := BestDeals(changes, &history.AllTimeLowest{Price: 30, Date: "2025-07-05"}, now)
	require.Len(t, deals, 3)
	require.Equal(t, 30.0, deals[0].Price)
	require.Equal(t, 32.0, deals[1].Price)
	require.Equal(t, 35.0, deals[2].Price)
	require.Equal(t, 36, deals[0].DaysAgo)
}

func TestBestDealsInsertsPrunedAllTimeLowest(t *testing.T) {
	now := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	// the event that set the all-time lowest has been pruned away
	changes := []history.PriceChange{
		initial("2025-07-01", 40),
		change("2025-07-10", 40, 35, -12.5),
	}

	deals := BestDeals(changes, &history.AllTimeLowest{Price: 26.97, Date: "2024-11-25"}, now)
	require.Len(t, deals, 3)
	require.Equal(t, 26.97, deals[0].Price)
	require.Equal(t, "2024-11-25", deals[0].Date)
	require.Equal(t, 35.0, deals[1].Price)
}

func TestSeasonalPatterns(t *testing.T) {
	require.Equal(t, AnalysisInsufficientData, SeasonalPatterns([]history.PriceChange{
		initial("2025-07-01", 40),
		change("2025-07-10", 40, 35, -12.5),
	}).Analysis)

	// three events but a single month is still insufficient
	require.Equal(t, AnalysisInsufficientData, SeasonalPatterns([]history.PriceChange{
		initial("2025-07-01", 40),
		change("2025-07-10", 40, 35, -12.5),
		change("2025-07-20", 35, 38, 8.6),
	}).Analysis)

	seasonal := SeasonalPatterns([]history.PriceChange{
		initial("2025-07-01", 40),
		change("2025-07-10", 40, 30, -25.0),
		change("2025-08-05", 30, 50, 66.7),
		// same month name a year later merges into the July bucket
		change("2026-07-03", 50, 20, -60.0),
	})
	require.Equal(t, AnalysisAvailable, seasonal.Analysis)
	require.Equal(t, 30.0, seasonal.MonthlyAverages["July"])
	require.Equal(t, 50.0, seasonal.MonthlyAverages["August"])
	require.Equal(t, "July", seasonal.BestMonth.Month)
	require.Equal(t, "August", seasonal.WorstMonth.Month)
	require.Equal(t, 20.0, seasonal.SeasonalVariation)
}

func TestAnalyzeProduct(t *testing.T) {
	now := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	product := &history.ProductHistory{
		Name:        "Essential Socks 10-pack",
		PurchaseURL: "https://example.com/p",
		Current:     history.CurrentState{Price: 38.21, Since: "2025-08-05"},
		AllTimeLowest: &history.AllTimeLowest{
			Price: 26.97, Date: "2024-11-25",
		},
		PriceChanges: []history.PriceChange{
			initial("2025-07-04", 44.95),
			change("2025-07-10", 44.95, 35.96, -20.0),
			change("2025-08-05", 35.96, 38.21, 6.3),
		},
	}

	analysis, err := AnalyzeProduct("base_10004564", product, now)
	require.NoError(t, err)
	require.Equal(t, 38.21, analysis.Stats.CurrentPrice)
	// a pruned all-time lowest still counts as the floor
	require.Equal(t, 26.97, analysis.Stats.LowestPrice)
	require.Equal(t, 44.95, analysis.Stats.HighestPrice)
	require.Equal(t, 39.71, analysis.Stats.AveragePrice)
	require.Equal(t, 3, analysis.Stats.DataPoints)
	require.Equal(t, "2025-07-04", analysis.Period.Start)
	require.Equal(t, "2025-08-05", analysis.Period.End)
}

func TestAnalyzeProductNoEvents(t *testing.T) {
	_, err := AnalyzeProduct("k", &history.ProductHistory{}, time.Now())
	require.Error(t, err)
}

func TestPortfolioInsights(t *testing.T) {
	now := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	products := map[string]*history.ProductHistory{
		"up": {
			Name:    "a",
			Current: history.CurrentState{Price: 110},
			PriceChanges: []history.PriceChange{
				initial("2025-07-01", 100),
				change("2025-07-10", 100, 110, 10.0),
			},
		},
		"down": {
			Name:    "b",
			Current: history.CurrentState{Price: 30},
			PriceChanges: []history.PriceChange{
				initial("2025-07-01", 40),
				change("2025-07-10", 40, 30, -25.0),
			},
		},
		"empty": {Name: "c"},
	}

	portfolio, err := PortfolioInsights(products, now)
	require.NoError(t, err)
	require.Equal(t, 2, portfolio.ProductsAnalyzed)
	// "up" sits 10 above its lowest, "down" is at its lowest
	require.Equal(t, 10.0, portfolio.TotalSavingsPotential)
	require.Equal(t, 1, portfolio.TrendDistribution[TrendIncreasing])
	require.Equal(t, 1, portfolio.TrendDistribution[TrendDecreasing])
	require.Equal(t, 30.0, portfolio.PriceRanges.LowestCurrent)
	require.Equal(t, 110.0, portfolio.PriceRanges.HighestCurrent)
	require.Equal(t, 70.0, portfolio.PriceRanges.AverageCurrent)
}

func TestPortfolioInsightsEmpty(t *testing.T) {
	_, err := PortfolioInsights(map[string]*history.ProductHistory{}, time.Now())
	require.Error(t, err)
}
