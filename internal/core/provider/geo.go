package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

const (
	DefaultIPAPIURL        = "https://ipapi.co"
	DefaultIPAPIComURL     = "http://ip-api.com/json"
	DefaultNominatimURL    = "https://nominatim.openstreetmap.org/reverse"
	DefaultBigDataCloudURL = "https://api.bigdatacloud.net/data/reverse-geocode-client"
)

// ErrNoLocation is returned when no lookup produced a usable position.
var ErrNoLocation = errors.New("location could not be determined")

type ipapiResponse struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

type ipAPIComResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Query      string  `json:"query"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Timezone   string  `json:"timezone"`
}

// GeoIPProvider resolves an IP address to an approximate location, using
// ipapi.co first and ip-api.com as fallback.
type GeoIPProvider struct {
	Optimizer   *engine.Optimizer
	PrimaryURL  string
	FallbackURL string
}

// NewGeoIPProvider returns a provider using the public endpoints.
func NewGeoIPProvider(optimizer *engine.Optimizer) *GeoIPProvider {
	return &GeoIPProvider{Optimizer: optimizer, PrimaryURL: DefaultIPAPIURL, FallbackURL: DefaultIPAPIComURL}
}

// Locate resolves ip; an empty ip locates the caller's own public address.
func (p *GeoIPProvider) Locate(ctx context.Context, ip string) (*core.Location, error) {
	ip = strings.TrimSpace(ip)
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, &core.ValidationError{Field: "ip", Message: "not a valid address"}
		}
		if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
			ip = ""
		}
	}

	primary, primaryErr := p.locateIPAPI(ctx, ip)
	if primaryErr == nil {
		return primary, nil
	}
	if ctx.Err() != nil {
		return nil, primaryErr
	}

	fallback, fallbackErr := p.locateIPAPICom(ctx, ip)
	if fallbackErr == nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoLocation, errors.Join(primaryErr, fallbackErr))
}

func (p *GeoIPProvider) locateIPAPI(ctx context.Context, ip string) (*core.Location, error) {
	base := strings.TrimSuffix(firstNonEmpty(p.PrimaryURL, DefaultIPAPIURL), "/")
	target := base + "/json/"
	if ip != "" {
		target = base + "/" + url.PathEscape(ip) + "/json/"
	}

	resp, err := engine.RequestJSON[ipapiResponse](ctx, p.Optimizer, engine.Request{
		URL:      target,
		CacheKey: "geoip:ipapi:" + firstNonEmpty(ip, "self"),
		Priority: engine.PriorityHigh,
	})
	if err != nil {
		return nil, fmt.Errorf("ipapi.co: %w", err)
	}
	if resp.Error {
		return nil, fmt.Errorf("ipapi.co: %s", firstNonEmpty(resp.Reason, "lookup failed"))
	}
	return ipLocation(resp.City, resp.Region, resp.CountryName, resp.Latitude, resp.Longitude, resp.Timezone)
}

func (p *GeoIPProvider) locateIPAPICom(ctx context.Context, ip string) (*core.Location, error) {
	target := strings.TrimSuffix(firstNonEmpty(p.FallbackURL, DefaultIPAPIComURL), "/")
	if ip != "" {
		target += "/" + url.PathEscape(ip)
	}
	params := url.Values{}
	params.Set("fields", "status,message,query,city,regionName,country,lat,lon,timezone")

	resp, err := engine.RequestJSON[ipAPIComResponse](ctx, p.Optimizer, engine.Request{
		URL:      buildURL(target, params),
		CacheKey: "geoip:ip-api:" + firstNonEmpty(ip, "self"),
		Priority: engine.PriorityHigh,
	})
	if err != nil {
		return nil, fmt.Errorf("ip-api.com: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("ip-api.com: %s", firstNonEmpty(resp.Message, "lookup failed"))
	}
	return ipLocation(resp.City, resp.RegionName, resp.Country, resp.Lat, resp.Lon, resp.Timezone)
}

func ipLocation(city, region, country string, lat, lon float64, timezone string) (*core.Location, error) {
	coords := core.Coordinates{Latitude: lat, Longitude: lon}
	if err := core.ValidateCoordinates(coords); err != nil {
		return nil, err
	}
	if lat == 0 && lon == 0 {
		return nil, ErrNoLocation
	}
	return &core.Location{
		Name:        firstNonEmpty(joinNonEmpty(", ", city, country), "Current location"),
		City:        city,
		Region:      region,
		Country:     country,
		Coordinates: coords,
		Timezone:    timezone,
		Source:      core.LocationSourceIP,
	}, nil
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		Hamlet   string `json:"hamlet"`
		County   string `json:"county"`
		State    string `json:"state"`
		Country  string `json:"country"`
		Tourism  string `json:"tourism"`
		Natural  string `json:"natural"`
		Suburb   string `json:"suburb"`
		Locality string `json:"locality"`
	} `json:"address"`
}

type bigDataCloudResponse struct {
	City                 string `json:"city"`
	Locality             string `json:"locality"`
	PrincipalSubdivision string `json:"principalSubdivision"`
	CountryName          string `json:"countryName"`
}

// ReverseGeocoder turns coordinates into a readable place name, using
// Nominatim first and BigDataCloud as fallback.
type ReverseGeocoder struct {
	Optimizer       *engine.Optimizer
	NominatimURL    string
	BigDataCloudURL string
	// UserAgent identifies the application to Nominatim, which rejects generic agents.
	UserAgent string
}

// NewReverseGeocoder returns a geocoder using the public endpoints.
func NewReverseGeocoder(optimizer *engine.Optimizer, userAgent string) *ReverseGeocoder {
	return &ReverseGeocoder{
		Optimizer:       optimizer,
		NominatimURL:    DefaultNominatimURL,
		BigDataCloudURL: DefaultBigDataCloudURL,
		UserAgent:       userAgent,
	}
}

// PlaceName returns "locality, region, country" for coords.
func (g *ReverseGeocoder) PlaceName(ctx context.Context, coords core.Coordinates) (string, error) {
	if err := core.ValidateCoordinates(coords); err != nil {
		return "", err
	}

	name, primaryErr := g.nominatim(ctx, coords)
	if primaryErr == nil && name != "" {
		return name, nil
	}
	if ctx.Err() != nil {
		return "", primaryErr
	}

	name, fallbackErr := g.bigDataCloud(ctx, coords)
	if fallbackErr == nil && name != "" {
		return name, nil
	}
	if primaryErr == nil && fallbackErr == nil {
		return "", ErrNoLocation
	}
	return "", errors.Join(primaryErr, fallbackErr)
}

func (g *ReverseGeocoder) nominatim(ctx context.Context, coords core.Coordinates) (string, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", fmt.Sprintf("%.5f", coords.Latitude))
	params.Set("lon", fmt.Sprintf("%.5f", coords.Longitude))
	params.Set("zoom", "14")
	params.Set("accept-language", "en")

	var headers map[string]string
	if g.UserAgent != "" {
		headers = map[string]string{"User-Agent": g.UserAgent}
	}

	resp, err := engine.RequestJSON[nominatimResponse](ctx, g.Optimizer, engine.Request{
		URL:      buildURL(firstNonEmpty(g.NominatimURL, DefaultNominatimURL), params),
		Headers:  headers,
		CacheKey: coordKey("reverse:nominatim", coords.Latitude, coords.Longitude, 3),
		Priority: engine.PriorityMedium,
	})
	if err != nil {
		return "", fmt.Errorf("nominatim: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("nominatim: %s", resp.Error)
	}

	addr := resp.Address
	locality := firstNonEmpty(addr.Tourism, addr.Natural, addr.City, addr.Town, addr.Village, addr.Hamlet, addr.Suburb, addr.Locality, addr.County)
	if name := joinNonEmpty(", ", locality, addr.State, addr.Country); name != "" {
		return name, nil
	}
	return resp.DisplayName, nil
}

func (g *ReverseGeocoder) bigDataCloud(ctx context.Context, coords core.Coordinates) (string, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.5f", coords.Latitude))
	params.Set("longitude", fmt.Sprintf("%.5f", coords.Longitude))
	params.Set("localityLanguage", "en")

	resp, err := engine.RequestJSON[bigDataCloudResponse](ctx, g.Optimizer, engine.Request{
		URL:      buildURL(firstNonEmpty(g.BigDataCloudURL, DefaultBigDataCloudURL), params),
		CacheKey: coordKey("reverse:bigdatacloud", coords.Latitude, coords.Longitude, 3),
		Priority: engine.PriorityMedium,
	})
	if err != nil {
		return "", fmt.Errorf("bigdatacloud: %w", err)
	}
	return joinNonEmpty(", ", firstNonEmpty(resp.City, resp.Locality), resp.PrincipalSubdivision, resp.CountryName), nil
}
