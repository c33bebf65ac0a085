package solar

import (
	"math"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"github.com/lumenhour/lumenhour/internal/core"
)

// Sun depression angles (degrees below the horizon) bounding the photographic windows.
// Negative depressions are elevations above the horizon.
const (
	blueHourDepression   = 6
	goldenHourDepression = 4
	goldenHourElevation  = -6
)

const dateLayout = "2006-01-02"

type cacheKey struct {
	lat      float64
	lon      float64
	date     string
	timezone string
}

// Calculator computes and caches sun times per location and date.
type Calculator struct {
	lock  sync.RWMutex
	cache map[cacheKey]core.SunTimes
}

// NewCalculator returns a Calculator with an empty cache.
func NewCalculator() *Calculator {
	return &Calculator{cache: make(map[cacheKey]core.SunTimes)}
}

// Times returns the solar events for the calendar date of date in loc. Events
// that do not occur (polar day or night) are left zero and Polar is set.
func (c *Calculator) Times(coords core.Coordinates, date time.Time, loc *time.Location) (core.SunTimes, error) {
	if err := core.ValidateCoordinates(coords); err != nil {
		return core.SunTimes{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	local := date.In(loc)
	key := cacheKey{
		lat:      round(coords.Latitude, 4),
		lon:      round(coords.Longitude, 4),
		date:     local.Format(dateLayout),
		timezone: loc.String(),
	}

	c.lock.RLock()
	times, ok := c.cache[key]
	c.lock.RUnlock()
	if ok {
		return times, nil
	}

	times = calculate(coords, local, loc)

	c.lock.Lock()
	c.cache[key] = times
	c.lock.Unlock()

	return times, nil
}

func calculate(coords core.Coordinates, local time.Time, loc *time.Location) core.SunTimes {
	observer := astral.Observer{Latitude: coords.Latitude, Longitude: coords.Longitude}
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	times := core.SunTimes{
		Date:     day.Format(dateLayout),
		Timezone: loc.String(),
	}

	steps := []struct {
		dst *time.Time
		fn  event
	}{
		{&times.Dawn, func(d time.Time) (time.Time, error) { return astral.Dawn(observer, d, astral.DepressionCivil) }},
		{&times.Sunrise, func(d time.Time) (time.Time, error) { return astral.Sunrise(observer, d) }},
		{&times.Sunset, func(d time.Time) (time.Time, error) { return astral.Sunset(observer, d) }},
		{&times.Dusk, func(d time.Time) (time.Time, error) { return astral.Dusk(observer, d, astral.DepressionCivil) }},
		{&times.MorningBlue.Start, func(d time.Time) (time.Time, error) { return astral.Dawn(observer, d, blueHourDepression) }},
		{&times.MorningBlue.End, func(d time.Time) (time.Time, error) { return astral.Dawn(observer, d, goldenHourDepression) }},
		{&times.MorningGolden.End, func(d time.Time) (time.Time, error) { return astral.Dawn(observer, d, goldenHourElevation) }},
		{&times.EveningGolden.Start, func(d time.Time) (time.Time, error) { return astral.Dusk(observer, d, goldenHourElevation) }},
		{&times.EveningGolden.End, func(d time.Time) (time.Time, error) { return astral.Dusk(observer, d, goldenHourDepression) }},
		{&times.EveningBlue.End, func(d time.Time) (time.Time, error) { return astral.Dusk(observer, d, blueHourDepression) }},
	}

	missing := false
	for _, step := range steps {
		at, ok := eventOn(day, loc, step.fn)
		if !ok {
			missing = true
		}
		*step.dst = at
	}
	times.MorningGolden.Start = times.MorningBlue.End
	times.EveningBlue.Start = times.EveningGolden.End

	for _, w := range []*core.Window{&times.MorningBlue, &times.MorningGolden, &times.EveningGolden, &times.EveningBlue} {
		if w.IsZero() || !w.End.After(w.Start) {
			*w = core.Window{}
		}
	}

	if !times.Sunrise.IsZero() && !times.Sunset.IsZero() && times.Sunset.After(times.Sunrise) {
		times.SolarNoon = times.Sunrise.Add(times.Sunset.Sub(times.Sunrise) / 2)
	}
	times.Polar = missing

	return times
}

type event func(time.Time) (time.Time, error)

// eventOn finds the event falling on day's calendar date in loc, probing the
// neighbouring UTC dates for zones far from UTC. astral reports an error when
// the sun never reaches the requested elevation.
func eventOn(day time.Time, loc *time.Location, fn event) (time.Time, bool) {
	want := day.Format(dateLayout)
	for _, offset := range []int{0, -1, 1} {
		at, err := fn(day.AddDate(0, 0, offset))
		if err != nil {
			continue
		}
		local := at.In(loc)
		if local.Format(dateLayout) == want {
			return local, true
		}
	}
	return time.Time{}, false
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
