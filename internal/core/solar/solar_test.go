package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhour/lumenhour/internal/core"
)

func TestTimesParisSolstice(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	calc := NewCalculator()
	date := time.Date(2025, 6, 21, 15, 0, 0, 0, paris)
	times, err := calc.Times(core.Coordinates{Latitude: 48.8566, Longitude: 2.3522}, date, paris)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-21", times.Date)
	assert.Equal(t, "Europe/Paris", times.Timezone)
	assert.False(t, times.Polar)

	assert.Equal(t, 5, times.Sunrise.Hour())
	assert.Equal(t, 21, times.Sunset.Hour())
	assert.Equal(t, paris.String(), times.Sunrise.Location().String())

	ordered := []time.Time{
		times.Dawn,
		times.MorningBlue.End,
		times.Sunrise,
		times.MorningGolden.End,
		times.SolarNoon,
		times.EveningGolden.Start,
		times.Sunset,
		times.EveningGolden.End,
		times.Dusk,
	}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i].After(ordered[i-1]), "event %d should follow event %d", i, i-1)
	}

	assert.Equal(t, times.MorningBlue.End, times.MorningGolden.Start)
	assert.Equal(t, times.EveningGolden.End, times.EveningBlue.Start)
	assert.Greater(t, times.EveningGolden.Duration(), 30*time.Minute)
	assert.Less(t, times.EveningGolden.Duration(), 2*time.Hour)
	assert.Greater(t, times.DayLength(), 15*time.Hour)
}

func TestTimesFarFromUTCStaysOnRequestedDate(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	calc := NewCalculator()
	times, err := calc.Times(core.Coordinates{Latitude: -33.8568, Longitude: 151.2153}, time.Date(2025, 12, 1, 0, 0, 0, 0, sydney), sydney)
	require.NoError(t, err)

	for _, at := range []time.Time{times.Sunrise, times.Sunset, times.Dawn, times.Dusk} {
		require.False(t, at.IsZero())
		assert.Equal(t, "2025-12-01", at.Format("2006-01-02"))
	}
	assert.True(t, times.Sunset.After(times.Sunrise))
}

func TestTimesPolarDay(t *testing.T) {
	tromso, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)

	calc := NewCalculator()
	times, err := calc.Times(core.Coordinates{Latitude: 69.6492, Longitude: 18.9553}, time.Date(2025, 6, 21, 12, 0, 0, 0, tromso), tromso)
	require.NoError(t, err)

	assert.True(t, times.Polar)
	assert.True(t, times.Sunset.IsZero())
	assert.True(t, times.EveningBlue.IsZero())
	assert.Zero(t, times.DayLength())
}

func TestTimesRejectsInvalidCoordinates(t *testing.T) {
	_, err := NewCalculator().Times(core.Coordinates{Latitude: 123}, time.Now(), nil)
	var validation *core.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestTimesCachesPerDate(t *testing.T) {
	calc := NewCalculator()
	coords := core.Coordinates{Latitude: 51.5074, Longitude: -0.1278}

	first, err := calc.Times(coords, time.Date(2025, 3, 20, 8, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	second, err := calc.Times(coords, time.Date(2025, 3, 20, 20, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, calc.cache, 1)

	_, err = calc.Times(coords, time.Date(2025, 3, 21, 8, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Len(t, calc.cache, 2)
}
