package engine

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// UnknownDomain buckets targets whose host cannot be resolved. It is never rate
// limited and never trips a circuit breaker.
const UnknownDomain = "unknown"

// DefaultCacheTTL applies to domains without an explicit entry.
const DefaultCacheTTL = 15 * time.Minute

// DefaultCacheTTLs holds per-domain response cache lifetimes.
var DefaultCacheTTLs = map[string]time.Duration{
	"nominatim.openstreetmap.org": time.Hour,
	"api.bigdatacloud.net":        time.Hour,
	"ipapi.co":                    time.Hour,
	"ip-api.com":                  time.Hour,
	"api.openweathermap.org":      15 * time.Minute,
	"api.pexels.com":              time.Hour,
	"api.unsplash.com":            time.Hour,
}

// DomainOf resolves the rate-limit bucket for a target URL.
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return UnknownDomain
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return UnknownDomain
	}
	return host
}

// DomainPolicy describes the static limits applied to one domain.
type DomainPolicy struct {
	Domain   string        `json:"domain"`
	Limit    RateLimit     `json:"limit"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

// Policies lists the effective limits and cache TTLs for all configured domains.
func Policies(limiter *RateLimiter, ttls map[string]time.Duration) []DomainPolicy {
	if ttls == nil {
		ttls = DefaultCacheTTLs
	}
	limits := DefaultLimits
	if limiter != nil && limiter.Limits != nil {
		limits = limiter.Limits
	}

	seen := make(map[string]struct{}, len(limits)+len(ttls))
	domains := make([]string, 0, len(limits)+len(ttls))
	for domain := range limits {
		if _, ok := seen[domain]; !ok {
			seen[domain] = struct{}{}
			domains = append(domains, domain)
		}
	}
	for domain := range ttls {
		if _, ok := seen[domain]; !ok {
			seen[domain] = struct{}{}
			domains = append(domains, domain)
		}
	}
	sort.Strings(domains)

	policies := make([]DomainPolicy, 0, len(domains))
	for _, domain := range domains {
		ttl, ok := ttls[domain]
		if !ok {
			ttl = DefaultCacheTTL
		}
		var limit RateLimit
		if limiter != nil {
			limit = limiter.Limit(domain)
		} else {
			limit = limits[domain]
		}
		policies = append(policies, DomainPolicy{Domain: domain, Limit: limit, CacheTTL: ttl})
	}
	return policies
}
