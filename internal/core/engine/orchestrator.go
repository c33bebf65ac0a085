package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/lumenhour/lumenhour/internal/core"
)

// ErrLocationNotFound is returned when a named location does not exist.
var ErrLocationNotFound = errors.New("location not found")

// Orchestrator assembles golden-hour reports from the solar calculator and
// the enrichment sources.
type Orchestrator struct {
	Sun       SunCalculator
	Weather   WeatherSource
	Geocoder  PlaceNamer
	Photos    PhotoSource
	Locator   IPLocator
	Locations LocationLookup
	// DefaultTimezone applies when neither the request nor the location names one.
	DefaultTimezone *time.Location
	PhotoLimit      int
	Clock           func() time.Time
}

// SunCalculator computes solar events for a date.
type SunCalculator interface {
	Times(coords core.Coordinates, date time.Time, loc *time.Location) (core.SunTimes, error)
}

// WeatherSource reports current conditions.
type WeatherSource interface {
	Current(ctx context.Context, coords core.Coordinates) (*core.Weather, error)
}

// PlaceNamer reverse-geocodes coordinates.
type PlaceNamer interface {
	PlaceName(ctx context.Context, coords core.Coordinates) (string, error)
}

// PhotoSource searches for inspiration photos.
type PhotoSource interface {
	Search(ctx context.Context, query string, limit int) ([]core.Photo, error)
}

// IPLocator resolves an IP address ("" for the caller's own) to a location.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (*core.Location, error)
}

// LocationLookup finds saved locations by slug. A nil record means not found.
type LocationLookup interface {
	GetLocation(ctx context.Context, slug string) (*core.LocationRecord, error)
}

// ReportRequest selects the location and date for a report. Exactly one of
// Coordinates, Location or auto-detection (neither set) is used, in that order.
type ReportRequest struct {
	Coordinates *core.Coordinates
	Location    string
	IP          string
	// Date selects a calendar day; its clock and zone are ignored.
	Date          time.Time
	Timezone      string
	SkipWeather   bool
	SkipPhotos    bool
	SkipPlaceName bool
	PhotoQuery    func(place string) string
}

// Report resolves the location, computes sun times and enriches the result.
// Only location and sun-time failures fail the report; enrichment failures are
// recorded as warnings.
func (o *Orchestrator) Report(ctx context.Context, req ReportRequest) (*core.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.Sun == nil {
		return nil, errors.New("sun calculator is not configured")
	}

	location, err := o.resolveLocation(ctx, req)
	if err != nil {
		return nil, err
	}

	loc, err := o.timezone(req.Timezone, location.Timezone)
	if err != nil {
		return nil, err
	}
	location.Timezone = loc.String()

	date := o.now().In(loc)
	if !req.Date.IsZero() {
		date = time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 12, 0, 0, 0, loc)
	}

	sun, err := o.Sun.Times(location.Coordinates, date, loc)
	if err != nil {
		return nil, fmt.Errorf("calculate sun times: %w", err)
	}

	report := &core.Report{
		ID:          uuid.NewString(),
		GeneratedAt: o.now(),
		Location:    *location,
		Sun:         sun,
	}
	if location.Source == core.LocationSourceBuiltin || location.Source == core.LocationSourceSaved {
		report.PlaceName = joinPlace(location.Name, location.City, location.Region, location.Country)
	}

	o.enrich(ctx, req, report)
	return report, nil
}

func (o *Orchestrator) enrich(ctx context.Context, req ReportRequest, report *core.Report) {
	var (
		mu         sync.Mutex
		weatherErr error
		placeErr   error
		photosErr  error
	)
	coords := report.Location.Coordinates

	wg := conc.NewWaitGroup()
	if !req.SkipWeather && o.Weather != nil {
		wg.Go(func() {
			weather, err := o.Weather.Current(ctx, coords)
			mu.Lock()
			defer mu.Unlock()
			report.Weather, weatherErr = weather, err
		})
	}

	wg.Go(func() {
		place := report.PlaceName
		if place == "" && !req.SkipPlaceName && o.Geocoder != nil {
			name, err := o.Geocoder.PlaceName(ctx, coords)
			mu.Lock()
			report.PlaceName, placeErr = name, err
			mu.Unlock()
			place = name
		}
		if place == "" && report.Location.Source != core.LocationSourceCoordinates {
			place = report.Location.Name
		}

		if req.SkipPhotos || o.Photos == nil {
			return
		}
		query := photoQuery(place)
		if req.PhotoQuery != nil {
			query = req.PhotoQuery(place)
		}
		photos, err := o.Photos.Search(ctx, query, o.PhotoLimit)
		mu.Lock()
		defer mu.Unlock()
		report.Photos, photosErr = photos, err
	})
	wg.Wait()

	if weatherErr != nil {
		report.Weather = nil
		report.Warnings = append(report.Warnings, "weather unavailable: "+weatherErr.Error())
	}
	if placeErr != nil {
		report.Warnings = append(report.Warnings, "place name unavailable: "+placeErr.Error())
	}
	if photosErr != nil {
		report.Photos = nil
		report.Warnings = append(report.Warnings, "photos unavailable: "+photosErr.Error())
	}
}

func (o *Orchestrator) resolveLocation(ctx context.Context, req ReportRequest) (*core.Location, error) {
	if req.Coordinates != nil {
		if err := core.ValidateCoordinates(*req.Coordinates); err != nil {
			return nil, err
		}
		return &core.Location{
			Name:        req.Coordinates.String(),
			Coordinates: *req.Coordinates,
			Source:      core.LocationSourceCoordinates,
		}, nil
	}

	if key := strings.TrimSpace(req.Location); key != "" {
		return o.lookupLocation(ctx, key)
	}

	if o.Locator == nil {
		return nil, errors.New("no location given and auto-detection is not configured")
	}
	location, err := o.Locator.Locate(ctx, req.IP)
	if err != nil {
		return nil, fmt.Errorf("detect location: %w", err)
	}
	return location, nil
}

func (o *Orchestrator) lookupLocation(ctx context.Context, key string) (*core.Location, error) {
	slug := core.Slugify(key)
	if o.Locations != nil && slug != "" {
		record, err := o.Locations.GetLocation(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("lookup location %q: %w", slug, err)
		}
		if record != nil {
			location := record.Location
			location.Source = core.LocationSourceSaved
			if record.IsBuiltin {
				location.Source = core.LocationSourceBuiltin
			}
			return &location, nil
		}
	}

	if location, ok := core.FindBuiltInLocation(key); ok {
		return location, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, key)
}

func (o *Orchestrator) timezone(override, fromLocation string) (*time.Location, error) {
	if name := strings.TrimSpace(override); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, &core.ValidationError{Field: "timezone", Message: err.Error()}
		}
		return loc, nil
	}
	if fromLocation != "" {
		if loc, err := time.LoadLocation(fromLocation); err == nil {
			return loc, nil
		}
	}
	if o.DefaultTimezone != nil {
		return o.DefaultTimezone, nil
	}
	return time.UTC, nil
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func photoQuery(place string) string {
	place = strings.TrimSpace(place)
	if idx := strings.Index(place, ","); idx > 0 {
		place = place[:idx]
	}
	if place == "" {
		return "golden hour landscape"
	}
	return place + " golden hour"
}

func joinPlace(parts ...string) string {
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return strings.Join(out, ", ")
}
