package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Helsinki")
	if err != nil {
		panic(err)
	}
}

// force the timezone to Helsinki because the runners executing the
// monitoring cycle can end up in any region, which would shift the
// calendar day boundaries the price history is keyed on
func Now() time.Time {
	return time.Now().In(Location)
}

const DateLayout = "2006-01-02"

// Today returns the current calendar day in the processing timezone.
func Today() string {
	return Now().Format(DateLayout)
}
