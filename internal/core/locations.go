package core

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LocationRecord wraps a location with persistence metadata.
type LocationRecord struct {
	Location  Location
	IsBuiltin bool
	UpdatedAt time.Time
}

// BuiltInLocations are well-known photography spots bundled with lumenhour.
var BuiltInLocations = []Location{
	{Slug: "eiffel-tower", Name: "Eiffel Tower", City: "Paris", Country: "France", Coordinates: Coordinates{Latitude: 48.8584, Longitude: 2.2945}, Timezone: "Europe/Paris", Description: "Iron lattice tower on the Champ de Mars"},
	{Slug: "santorini-oia", Name: "Oia", City: "Santorini", Country: "Greece", Coordinates: Coordinates{Latitude: 36.4618, Longitude: 25.3753}, Timezone: "Europe/Athens", Description: "Caldera sunsets over whitewashed houses"},
	{Slug: "grand-canyon-mather-point", Name: "Grand Canyon (Mather Point)", Region: "Arizona", Country: "United States", Coordinates: Coordinates{Latitude: 36.0617, Longitude: -112.1078}, Timezone: "America/Phoenix", Description: "South Rim overlook"},
	{Slug: "golden-gate-bridge", Name: "Golden Gate Bridge", City: "San Francisco", Country: "United States", Coordinates: Coordinates{Latitude: 37.8199, Longitude: -122.4783}, Timezone: "America/Los_Angeles"},
	{Slug: "mount-fuji-kawaguchiko", Name: "Mount Fuji from Lake Kawaguchi", Region: "Yamanashi", Country: "Japan", Coordinates: Coordinates{Latitude: 35.5161, Longitude: 138.7519}, Timezone: "Asia/Tokyo"},
	{Slug: "taj-mahal", Name: "Taj Mahal", City: "Agra", Country: "India", Coordinates: Coordinates{Latitude: 27.1751, Longitude: 78.0421}, Timezone: "Asia/Kolkata"},
	{Slug: "machu-picchu", Name: "Machu Picchu", Region: "Cusco", Country: "Peru", Coordinates: Coordinates{Latitude: -13.1631, Longitude: -72.5450}, Timezone: "America/Lima"},
	{Slug: "sydney-opera-house", Name: "Sydney Opera House", City: "Sydney", Country: "Australia", Coordinates: Coordinates{Latitude: -33.8568, Longitude: 151.2153}, Timezone: "Australia/Sydney"},
	{Slug: "reynisfjara", Name: "Reynisfjara Beach", Region: "Vík", Country: "Iceland", Coordinates: Coordinates{Latitude: 63.4044, Longitude: -19.0450}, Timezone: "Atlantic/Reykjavik", Description: "Black sand beach and basalt stacks"},
	{Slug: "lofoten-reine", Name: "Reine", Region: "Lofoten", Country: "Norway", Coordinates: Coordinates{Latitude: 67.9324, Longitude: 13.0890}, Timezone: "Europe/Oslo"},
	{Slug: "cape-town-table-mountain", Name: "Table Mountain", City: "Cape Town", Country: "South Africa", Coordinates: Coordinates{Latitude: -33.9628, Longitude: 18.4098}, Timezone: "Africa/Johannesburg"},
	{Slug: "angkor-wat", Name: "Angkor Wat", City: "Siem Reap", Country: "Cambodia", Coordinates: Coordinates{Latitude: 13.4125, Longitude: 103.8670}, Timezone: "Asia/Phnom_Penh"},
}

// FindBuiltInLocation looks up a built-in location by slug or name.
func FindBuiltInLocation(key string) (*Location, bool) {
	needle := strings.TrimSpace(strings.ToLower(key))
	if needle == "" {
		return nil, false
	}

	slug := Slugify(needle)
	for _, location := range BuiltInLocations {
		if location.Slug == slug || strings.EqualFold(location.Name, needle) {
			copied := location
			copied.Source = LocationSourceBuiltin
			return &copied, true
		}
	}

	return nil, false
}

// Slugify builds a lowercase, hyphen-separated, ASCII-only identifier.
func Slugify(value string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		folded = value
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// ValidateLocation checks the fields required to store a location.
func ValidateLocation(location Location) error {
	if strings.TrimSpace(location.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if location.Slug != "" && Slugify(location.Slug) != location.Slug {
		return &ValidationError{Field: "slug", Message: "must be lowercase letters, digits and hyphens"}
	}
	if location.Timezone != "" {
		if _, err := time.LoadLocation(location.Timezone); err != nil {
			return &ValidationError{Field: "timezone", Message: err.Error()}
		}
	}
	return ValidateCoordinates(location.Coordinates)
}
