package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

// DefaultOpenWeatherURL is the current-weather endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// openWeatherResponse is the subset of the OpenWeather current-weather payload we use.
type openWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Visibility int `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}

// WeatherProvider fetches current conditions from OpenWeather.
type WeatherProvider struct {
	Optimizer *engine.Optimizer
	APIKey    string
	BaseURL   string
}

// NewWeatherProvider returns a provider using the public OpenWeather endpoint.
func NewWeatherProvider(optimizer *engine.Optimizer, apiKey string) *WeatherProvider {
	return &WeatherProvider{Optimizer: optimizer, APIKey: apiKey, BaseURL: DefaultOpenWeatherURL}
}

// Current returns the current weather at coords in metric units.
func (p *WeatherProvider) Current(ctx context.Context, coords core.Coordinates) (*core.Weather, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, &ConfigError{Provider: "openweather", Setting: "api key"}
	}
	if err := core.ValidateCoordinates(coords); err != nil {
		return nil, err
	}

	base := p.BaseURL
	if base == "" {
		base = DefaultOpenWeatherURL
	}
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.4f", coords.Latitude))
	params.Set("lon", fmt.Sprintf("%.4f", coords.Longitude))
	params.Set("units", "metric")
	params.Set("appid", p.APIKey)

	resp, err := engine.RequestJSON[openWeatherResponse](ctx, p.Optimizer, engine.Request{
		URL:      buildURL(base, params),
		CacheKey: coordKey("weather", coords.Latitude, coords.Longitude, 2),
		Priority: engine.PriorityHigh,
	})
	if err != nil {
		return nil, fmt.Errorf("openweather: %w", err)
	}

	weather := &core.Weather{
		TemperatureC: resp.Main.Temp,
		FeelsLikeC:   resp.Main.FeelsLike,
		Humidity:     resp.Main.Humidity,
		CloudCover:   resp.Clouds.All,
		VisibilityM:  resp.Visibility,
		WindSpeedMS:  resp.Wind.Speed,
		Conditions:   core.RateConditions(resp.Clouds.All, resp.Visibility),
	}
	if resp.Dt > 0 {
		weather.ObservedAt = time.Unix(resp.Dt, 0).UTC()
	}
	if len(resp.Weather) > 0 {
		weather.Description = resp.Weather[0].Description
		weather.Icon = resp.Weather[0].Icon
	}
	return weather, nil
}
