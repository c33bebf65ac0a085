package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

const (
	DefaultPexelsURL   = "https://api.pexels.com/v1/search"
	DefaultUnsplashURL = "https://api.unsplash.com/search/photos"

	defaultPhotoLimit = 6
	maxPhotoLimit     = 30
)

// PhotoProvider searches a stock photo library.
type PhotoProvider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]core.Photo, error)
}

func normalizeSearch(query string, limit int) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, &core.ValidationError{Field: "query", Message: "is required"}
	}
	if limit <= 0 {
		limit = defaultPhotoLimit
	}
	if limit > maxPhotoLimit {
		limit = maxPhotoLimit
	}
	return query, limit, nil
}

func photoCacheKey(source, query string, limit int) string {
	return fmt.Sprintf("photos:%s:%s:%d", source, strings.ToLower(query), limit)
}

type pexelsResponse struct {
	Photos []struct {
		ID              int64  `json:"id"`
		Width           int    `json:"width"`
		Height          int    `json:"height"`
		URL             string `json:"url"`
		Photographer    string `json:"photographer"`
		PhotographerURL string `json:"photographer_url"`
		Alt             string `json:"alt"`
		Src             struct {
			Large2x string `json:"large2x"`
			Large   string `json:"large"`
			Medium  string `json:"medium"`
			Small   string `json:"small"`
		} `json:"src"`
	} `json:"photos"`
}

// PexelsProvider searches Pexels.
type PexelsProvider struct {
	Optimizer *engine.Optimizer
	APIKey    string
	BaseURL   string
}

func (p *PexelsProvider) Name() string { return "pexels" }

// Search returns up to limit landscape photos matching query.
func (p *PexelsProvider) Search(ctx context.Context, query string, limit int) ([]core.Photo, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, &ConfigError{Provider: p.Name(), Setting: "api key"}
	}
	query, limit, err := normalizeSearch(query, limit)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("orientation", "landscape")

	resp, err := engine.RequestJSON[pexelsResponse](ctx, p.Optimizer, engine.Request{
		URL:      buildURL(firstNonEmpty(p.BaseURL, DefaultPexelsURL), params),
		Headers:  map[string]string{"Authorization": p.APIKey},
		CacheKey: photoCacheKey(p.Name(), query, limit),
		Priority: engine.PriorityLow,
	})
	if err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}

	photos := make([]core.Photo, 0, len(resp.Photos))
	for _, item := range resp.Photos {
		photos = append(photos, core.Photo{
			ID:              strconv.FormatInt(item.ID, 10),
			Source:          p.Name(),
			URL:             firstNonEmpty(item.Src.Large2x, item.Src.Large),
			ThumbnailURL:    firstNonEmpty(item.Src.Medium, item.Src.Small),
			PageURL:         item.URL,
			Photographer:    item.Photographer,
			PhotographerURL: item.PhotographerURL,
			Alt:             item.Alt,
			Width:           item.Width,
			Height:          item.Height,
		})
	}
	return photos, nil
}

type unsplashResponse struct {
	Results []struct {
		ID             string `json:"id"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		URLs           struct {
			Regular string `json:"regular"`
			Small   string `json:"small"`
			Thumb   string `json:"thumb"`
		} `json:"urls"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
		User struct {
			Name  string `json:"name"`
			Links struct {
				HTML string `json:"html"`
			} `json:"links"`
		} `json:"user"`
	} `json:"results"`
}

// UnsplashProvider searches Unsplash.
type UnsplashProvider struct {
	Optimizer *engine.Optimizer
	AccessKey string
	BaseURL   string
}

func (p *UnsplashProvider) Name() string { return "unsplash" }

// Search returns up to limit landscape photos matching query.
func (p *UnsplashProvider) Search(ctx context.Context, query string, limit int) ([]core.Photo, error) {
	if strings.TrimSpace(p.AccessKey) == "" {
		return nil, &ConfigError{Provider: p.Name(), Setting: "access key"}
	}
	query, limit, err := normalizeSearch(query, limit)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("orientation", "landscape")

	resp, err := engine.RequestJSON[unsplashResponse](ctx, p.Optimizer, engine.Request{
		URL: buildURL(firstNonEmpty(p.BaseURL, DefaultUnsplashURL), params),
		Headers: map[string]string{
			"Authorization":  "Client-ID " + p.AccessKey,
			"Accept-Version": "v1",
		},
		CacheKey: photoCacheKey(p.Name(), query, limit),
		Priority: engine.PriorityLow,
	})
	if err != nil {
		return nil, fmt.Errorf("unsplash: %w", err)
	}

	photos := make([]core.Photo, 0, len(resp.Results))
	for _, item := range resp.Results {
		photos = append(photos, core.Photo{
			ID:              item.ID,
			Source:          p.Name(),
			URL:             item.URLs.Regular,
			ThumbnailURL:    firstNonEmpty(item.URLs.Small, item.URLs.Thumb),
			PageURL:         item.Links.HTML,
			Photographer:    item.User.Name,
			PhotographerURL: item.User.Links.HTML,
			Alt:             firstNonEmpty(item.AltDescription, item.Description),
			Width:           item.Width,
			Height:          item.Height,
		})
	}
	return photos, nil
}

// MultiPhotoSource tries each provider in order and keeps the first non-empty result.
type MultiPhotoSource struct {
	Providers []PhotoProvider
}

func (m *MultiPhotoSource) Name() string {
	names := make([]string, 0, len(m.Providers))
	for _, p := range m.Providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

// Search returns the first provider's non-empty result. Errors are returned only
// when every provider failed.
func (m *MultiPhotoSource) Search(ctx context.Context, query string, limit int) ([]core.Photo, error) {
	if _, _, err := normalizeSearch(query, limit); err != nil {
		return nil, err
	}

	var errs []error
	for _, p := range m.Providers {
		photos, err := p.Search(ctx, query, limit)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(photos) > 0 {
			return photos, nil
		}
	}
	if len(errs) == len(m.Providers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return []core.Photo{}, nil
}
