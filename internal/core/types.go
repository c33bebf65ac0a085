package core

import (
	"fmt"
	"math"
	"time"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// String renders coordinates with five decimals (about one metre).
func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// ValidationError reports bad caller input before any work is done.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidateCoordinates checks that c lies within WGS84 bounds.
func ValidateCoordinates(c Coordinates) error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return &ValidationError{Field: "latitude", Message: "must be between -90 and 90"}
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return &ValidationError{Field: "longitude", Message: "must be between -180 and 180"}
	}
	return nil
}

// LocationSource records how a report's location was resolved.
type LocationSource string

const (
	LocationSourceCoordinates LocationSource = "coordinates"
	LocationSourceBuiltin     LocationSource = "builtin"
	LocationSourceSaved       LocationSource = "saved"
	LocationSourceIP          LocationSource = "ip"
)

// Location is a named place.
type Location struct {
	Slug        string         `json:"slug,omitempty" yaml:"slug,omitempty"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	City        string         `json:"city,omitempty" yaml:"city,omitempty"`
	Region      string         `json:"region,omitempty" yaml:"region,omitempty"`
	Country     string         `json:"country,omitempty" yaml:"country,omitempty"`
	Coordinates Coordinates    `json:"coordinates" yaml:"coordinates"`
	Timezone    string         `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Source      LocationSource `json:"source,omitempty" yaml:"-"`
}

// Window is a closed time interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the window did not occur.
func (w Window) IsZero() bool {
	return w.Start.IsZero() || w.End.IsZero()
}

// Duration returns the window length, or zero if it did not occur.
func (w Window) Duration() time.Duration {
	if w.IsZero() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// SunTimes holds the solar events for one date at one place.
type SunTimes struct {
	Date          string    `json:"date"`
	Timezone      string    `json:"timezone"`
	Dawn          time.Time `json:"dawn"`
	Sunrise       time.Time `json:"sunrise"`
	SolarNoon     time.Time `json:"solar_noon"`
	Sunset        time.Time `json:"sunset"`
	Dusk          time.Time `json:"dusk"`
	MorningGolden Window    `json:"morning_golden_hour"`
	EveningGolden Window    `json:"evening_golden_hour"`
	MorningBlue   Window    `json:"morning_blue_hour"`
	EveningBlue   Window    `json:"evening_blue_hour"`
	// Polar is set when some events do not occur (midnight sun or polar night).
	Polar bool `json:"polar,omitempty"`
}

// DayLength returns sunset minus sunrise when both occur.
func (s SunTimes) DayLength() time.Duration {
	if s.Sunrise.IsZero() || s.Sunset.IsZero() {
		return 0
	}
	return s.Sunset.Sub(s.Sunrise)
}

// PhotoConditions is a coarse rating of the sky for golden-hour shooting.
type PhotoConditions string

const (
	ConditionsExcellent PhotoConditions = "excellent"
	ConditionsGood      PhotoConditions = "good"
	ConditionsFair      PhotoConditions = "fair"
	ConditionsPoor      PhotoConditions = "poor"
)

// RateConditions rates cloud cover (percent) and visibility (metres). Scattered
// cloud between 20% and 60% rates highest.
func RateConditions(cloudCover int, visibilityMeters int) PhotoConditions {
	rating := ConditionsPoor
	switch {
	case cloudCover >= 20 && cloudCover <= 60:
		rating = ConditionsExcellent
	case cloudCover < 20:
		rating = ConditionsGood
	case cloudCover <= 85:
		rating = ConditionsFair
	}
	if visibilityMeters > 0 && visibilityMeters < 2000 && rating != ConditionsPoor {
		rating = ConditionsFair
	}
	return rating
}

// Weather is the current observation at a location.
type Weather struct {
	TemperatureC float64         `json:"temperature_c"`
	FeelsLikeC   float64         `json:"feels_like_c"`
	Humidity     int             `json:"humidity"`
	CloudCover   int             `json:"cloud_cover"`
	VisibilityM  int             `json:"visibility_m"`
	WindSpeedMS  float64         `json:"wind_speed_ms"`
	Description  string          `json:"description"`
	Icon         string          `json:"icon,omitempty"`
	Conditions   PhotoConditions `json:"conditions"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// Photo is a stock image used for inspiration.
type Photo struct {
	ID              string `json:"id"`
	Source          string `json:"source"`
	URL             string `json:"url"`
	ThumbnailURL    string `json:"thumbnail_url"`
	PageURL         string `json:"page_url,omitempty"`
	Photographer    string `json:"photographer,omitempty"`
	PhotographerURL string `json:"photographer_url,omitempty"`
	Alt             string `json:"alt,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
}

// Report is the full golden-hour answer for one location and date.
type Report struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Location    Location  `json:"location"`
	PlaceName   string    `json:"place_name,omitempty"`
	Sun         SunTimes  `json:"sun"`
	Weather     *Weather  `json:"weather,omitempty"`
	Photos      []Photo   `json:"photos,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}
