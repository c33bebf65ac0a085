package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	apperrors "github.com/lumenhour/lumenhour/internal/errors"
	"github.com/lumenhour/lumenhour/internal/metrics"
	"github.com/lumenhour/lumenhour/internal/output"
)

const dateLayout = "2006-01-02"

// ReportBuilder assembles golden-hour reports.
type ReportBuilder interface {
	Report(ctx context.Context, req engine.ReportRequest) (*core.Report, error)
}

// LocationReader lists and fetches stored locations.
type LocationReader interface {
	ListLocations(ctx context.Context) ([]core.LocationRecord, error)
	GetLocation(ctx context.Context, slug string) (*core.LocationRecord, error)
}

// StatsSource exposes optimizer state.
type StatsSource interface {
	Stats() engine.Stats
}

// OptimizerAdmin is the optimizer surface exposed under /admin.
type OptimizerAdmin interface {
	StatsSource
	ClearCache()
}

// API serves the golden-hour endpoints. Nil dependencies answer 503.
type API struct {
	Reports   ReportBuilder
	Locations LocationReader
	Optimizer OptimizerAdmin
	// Policies lists the effective per-domain limits.
	Policies func() []engine.DomainPolicy
}

// GoldenHour handles GET /api/v1/golden-hour.
func (a *API) GoldenHour(w http.ResponseWriter, r *http.Request) {
	if a.Reports == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("report builder not configured"))
		return
	}

	req, format, err := parseReportQuery(r)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}

	start := time.Now()
	report, err := a.Reports.Report(r.Context(), req)
	if err != nil {
		metrics.RecordReport("error", 0, time.Since(start))
		apperrors.RespondWithError(w, r, err)
		return
	}
	metrics.RecordReport(string(report.Location.Source), len(report.Warnings), time.Since(start))

	if format == output.FormatMarkdown {
		text, err := output.NewFormatter(output.FormatMarkdown).FormatReport(report)
		if err != nil {
			apperrors.RespondWithError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListLocations handles GET /api/v1/locations.
func (a *API) ListLocations(w http.ResponseWriter, r *http.Request) {
	if a.Locations == nil {
		records := make([]core.LocationRecord, 0, len(core.BuiltInLocations))
		for _, location := range core.BuiltInLocations {
			location.Source = core.LocationSourceBuiltin
			records = append(records, core.LocationRecord{Location: location, IsBuiltin: true})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"locations": records})
		return
	}

	records, err := a.Locations.ListLocations(r.Context())
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	if records == nil {
		records = []core.LocationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locations": records})
}

// GetLocation handles GET /api/v1/locations/{slug}.
func (a *API) GetLocation(w http.ResponseWriter, r *http.Request) {
	slug := core.Slugify(chi.URLParam(r, "slug"))
	if slug == "" {
		apperrors.RespondWithError(w, r, &core.ValidationError{Field: "slug", Message: "is required"})
		return
	}

	var record *core.LocationRecord
	if a.Locations != nil {
		found, err := a.Locations.GetLocation(r.Context(), slug)
		if err != nil {
			apperrors.RespondWithError(w, r, err)
			return
		}
		record = found
	} else if location, ok := core.FindBuiltInLocation(slug); ok {
		record = &core.LocationRecord{Location: *location, IsBuiltin: true}
	}

	if record == nil {
		apperrors.RespondWithError(w, r, apperrors.NewNotFoundError("location "+slug+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// OptimizerStats handles GET /admin/optimizer.
func (a *API) OptimizerStats(w http.ResponseWriter, r *http.Request) {
	if a.Optimizer == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("optimizer not configured"))
		return
	}
	writeJSON(w, http.StatusOK, a.Optimizer.Stats())
}

// ClearOptimizerCache handles DELETE /admin/optimizer/cache.
func (a *API) ClearOptimizerCache(w http.ResponseWriter, r *http.Request) {
	if a.Optimizer == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("optimizer not configured"))
		return
	}
	cleared := a.Optimizer.Stats().CacheSize
	a.Optimizer.ClearCache()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// DomainPolicies handles GET /admin/optimizer/policies.
func (a *API) DomainPolicies(w http.ResponseWriter, r *http.Request) {
	policies := engine.Policies(nil, nil)
	if a.Policies != nil {
		policies = a.Policies()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
}

func parseReportQuery(r *http.Request) (engine.ReportRequest, output.Format, error) {
	query := r.URL.Query()
	req := engine.ReportRequest{
		Location: strings.TrimSpace(query.Get("location")),
		Timezone: strings.TrimSpace(query.Get("tz")),
		IP:       clientIP(r),
	}

	lat, lon := strings.TrimSpace(query.Get("lat")), strings.TrimSpace(query.Get("lon"))
	switch {
	case lat != "" && lon != "":
		coords, err := parseCoordinates(lat, lon)
		if err != nil {
			return req, "", err
		}
		req.Coordinates = &coords
	case lat != "" || lon != "":
		return req, "", &core.ValidationError{Field: "lat/lon", Message: "both must be given together"}
	}

	if value := strings.TrimSpace(query.Get("date")); value != "" {
		date, err := time.Parse(dateLayout, value)
		if err != nil {
			return req, "", &core.ValidationError{Field: "date", Message: "must be YYYY-MM-DD"}
		}
		req.Date = date
	}

	var err error
	if req.SkipWeather, err = queryBool(query.Get("no_weather"), "no_weather"); err != nil {
		return req, "", err
	}
	if req.SkipPhotos, err = queryBool(query.Get("no_photos"), "no_photos"); err != nil {
		return req, "", err
	}

	format := output.FormatJSON
	if value := query.Get("format"); value != "" {
		parsed, err := output.ParseFormat(value)
		if err != nil || parsed == output.FormatTable {
			return req, "", &core.ValidationError{Field: "format", Message: "must be json or markdown"}
		}
		format = parsed
	}
	return req, format, nil
}

func parseCoordinates(lat, lon string) (core.Coordinates, error) {
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return core.Coordinates{}, &core.ValidationError{Field: "lat", Message: "must be a number"}
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return core.Coordinates{}, &core.ValidationError{Field: "lon", Message: "must be a number"}
	}
	coords := core.Coordinates{Latitude: latitude, Longitude: longitude}
	return coords, core.ValidateCoordinates(coords)
}

func queryBool(value, field string) (bool, error) {
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, &core.ValidationError{Field: field, Message: "must be true or false"}
	}
	return parsed, nil
}

// clientIP returns the caller address set by the RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}
