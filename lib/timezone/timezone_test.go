package timezone

import (
	"testing"
	"time"
)

func TestNow(t *testing.T) {
	now := Now()
	if now.Location().String() != "Europe/Helsinki" {
		t.Fatalf("expected Europe/Helsinki, got %s", now.Location())
	}
}

func TestToday(t *testing.T) {
	day := Today()
	parsed, err := time.ParseInLocation(DateLayout, day, Location)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Year() != Now().Year() {
		t.Fatalf("parsed year %d does not match current year", parsed.Year())
	}
}
