package scrape

import (
	"context"
	"net/http/cookiejar"
	"time"

	"pricewatch-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
)

// NewClient builds the resty client every site scraper shares: browser-like
// headers, a cookie jar, the cloudflare bypass transport and request tracing.
func NewClient(baseURL, tracerName string) *resty.Client {
	client := resty.New()
	client.SetBaseURL(baseURL)

	jar, err := cookiejar.New(nil)
	if err == nil {
		client.SetCookieJar(jar)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	client.SetHeader("Accept-Language", "fi-FI,fi;q=0.9,en;q=0.8")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, tracerName)

	return client
}

// Throttle sleeps for the politeness delay between requests to the same
// site, plus up to a second of jitter so cycles don't hit pages on an
// exact rhythm.
func Throttle(ctx context.Context, base time.Duration) {
	jitterMs, err := random.IntRange(0, 1000)
	if err != nil {
		jitterMs = 250
	}
	select {
	case <-time.After(base + time.Duration(jitterMs)*time.Millisecond):
	case <-ctx.Done():
	}
}
