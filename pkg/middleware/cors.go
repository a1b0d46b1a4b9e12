package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is the list of allowed origins (e.g. "https://example.com").
	// If it contains "*", all origins are allowed (only safe in development).
	AllowedOrigins []string

	// AllowedMethods is the list of allowed HTTP methods.
	// Defaults to GET, POST, PUT, PATCH, DELETE, OPTIONS if empty.
	AllowedMethods []string

	// AllowedHeaders is the list of allowed request headers. Defaults to
	// Accept, Content-Type, the correlation id and both session headers.
	AllowedHeaders []string

	// ExposedHeaders is the list of response headers the browser may read.
	// access_token must be exposed for clients to adopt rotated tokens.
	ExposedHeaders []string

	// MaxAge is how long (in seconds) preflight results can be cached.
	// Defaults to 3600 if 0.
	MaxAge int

	// AllowCredentials indicates whether credentials (cookies, auth headers) are supported.
	AllowCredentials bool

	// Environment controls wildcard behavior. Wildcard origins are only
	// accepted when Environment is "development" or AllowedOrigins explicitly contains "*".
	Environment string
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Accept", "Content-Type", CorrelationHeader, AccessTokenHeader, RefreshTokenHeader}
)

// DefaultCORSConfig returns a permissive configuration for development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: defaultCORSMethods,
		AllowedHeaders: defaultCORSHeaders,
		ExposedHeaders: []string{CorrelationHeader, AccessTokenHeader},
		MaxAge:         3600,
		Environment:    "development",
	}
}

type corsPolicy struct {
	wildcard    bool
	credentials bool
	origins     map[string]bool
	headers     map[string]string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = defaultCORSMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = defaultCORSHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 3600
	}

	p := &corsPolicy{
		wildcard:    cfg.Environment == "development",
		credentials: cfg.AllowCredentials,
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		headers: map[string]string{
			"Access-Control-Allow-Methods": strings.Join(cfg.AllowedMethods, ", "),
			"Access-Control-Allow-Headers": strings.Join(cfg.AllowedHeaders, ", "),
			"Access-Control-Max-Age":       strconv.Itoa(cfg.MaxAge),
		},
	}
	if len(cfg.ExposedHeaders) > 0 {
		p.headers["Access-Control-Expose-Headers"] = strings.Join(cfg.ExposedHeaders, ", ")
	}
	if cfg.AllowCredentials {
		p.headers["Access-Control-Allow-Credentials"] = "true"
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.wildcard = true
			continue
		}
		p.origins[o] = true
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed. Credentialed requests never get "*".
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.wildcard && p.credentials:
		return origin
	case p.wildcard:
		return "*"
	case p.origins[origin]:
		return origin
	}
	return ""
}

// CORS sets the cross-origin headers and answers preflight requests with 204.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if allowed := p.allowOrigin(origin); allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
			}
			if allowed := h.Get("Access-Control-Allow-Origin"); allowed != "" && allowed != "*" {
				h.Add("Vary", "Origin")
			}
			for k, v := range p.headers {
				h.Set(k, v)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
