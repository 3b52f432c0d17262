package products

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackedFilters(t *testing.T) {
	config := Config{Products: map[string][]Product{
		"bjornborg": {
			{Name: "a", URL: "https://a", Status: StatusTrack},
			{Name: "b", URL: "https://b", Status: StatusIgnore},
		},
		"fitnesstukku": {
			{Name: "c", URL: "https://c", Status: StatusTrack},
		},
	}}

	require.Len(t, config.Tracked("bjornborg"), 1)
	require.Equal(t, "a", config.Tracked("bjornborg")[0].Name)
	require.Empty(t, config.Tracked("unknown"))

	urls := config.TrackedURLs()
	require.True(t, urls["https://a"])
	require.False(t, urls["https://b"])
	require.True(t, urls["https://c"])
}

func TestEANActiveStores(t *testing.T) {
	p := EANProduct{
		EAN:    "6430058215893",
		Status: StatusTrack,
		Stores: map[string]EANStore{
			"apteekki360": {URL: "https://a", Status: "active"},
			"tokmanni":    {URL: "https://t", Status: "paused"},
			"ruohonjuuri": {Status: "active"},
		},
	}
	stores := p.ActiveStores()
	require.Len(t, stores, 1)
	require.Equal(t, "https://a", stores["apteekki360"])
}

const issueBody = "Please track this.\n\n```json\n" +
	`{"name": "Essential Socks 10-pack", "url": "https://www.bjornborg.com/fi/essential-socks-10-pack-10004564-mp001/", "site": "bjornborg"}` +
	"\n```\nThanks!"

func TestApplyIssueCommandTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json5")

	product, err := ApplyIssueCommand(path, issueBody, "Track")
	require.NoError(t, err)
	require.Equal(t, StatusTrack, product.Status)
	require.Equal(t, "10004564", product.ProductID)
	require.Equal(t, "socks", product.Category)

	config, err := ReadConfig(path)
	require.NoError(t, err)
	require.Len(t, config.Products["bjornborg"], 1)

	// re-submitting the same URL with ignore replaces, not duplicates
	product, err = ApplyIssueCommand(path, issueBody, "ignore")
	require.NoError(t, err)
	require.Equal(t, StatusIgnore, product.Status)

	config, err = ReadConfig(path)
	require.NoError(t, err)
	require.Len(t, config.Products["bjornborg"], 1)
	require.Equal(t, StatusIgnore, config.Products["bjornborg"][0].Status)
}

func TestApplyIssueCommandIgnoresChatter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json5")
	_, err := ApplyIssueCommand(path, issueBody, "thanks, looks good!")
	require.ErrorIs(t, err, ErrNotACommand)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestApplyIssueCommandRejectsMissingBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json5")
	_, err := ApplyIssueCommand(path, "no block here", "track")
	require.Error(t, err)
}

func TestDeriveProductID(t *testing.T) {
	require.Equal(t, "10004564",
		deriveProductID("bjornborg", "https://www.bjornborg.com/fi/essential-socks-10-pack-10004564-mp001/"))
	require.Equal(t, "fitnesstukku_5854R",
		deriveProductID("fitnesstukku", "https://www.fitnesstukku.fi/whey-80/5854R.html"))
	require.Equal(t, "", deriveProductID("tokmanni", "https://www.tokmanni.fi/x-123"))
}

func TestDeriveCategory(t *testing.T) {
	require.Equal(t, "socks", deriveCategory("bjornborg", "Essential Socks 10-pack"))
	require.Equal(t, "apparel", deriveCategory("bjornborg", "Centre Crew"))
	require.Equal(t, "unknown", deriveCategory("bjornborg", "Towel"))
	require.Equal(t, "protein", deriveCategory("fitnesstukku", "Whey-80"))
	require.Equal(t, "supplements", deriveCategory("fitnesstukku", "Creatine Monohydrate"))
	require.Equal(t, "nutrition", deriveCategory("fitnesstukku", "Maltodextrin"))
}
