package server

import "net/http"

// The API only answers JSON and static preview images, so the defaults lock
// down every fetch directive except images and never allow framing.
const (
	defaultContentSecurityPolicy     = "default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	defaultCrossOriginResourcePolicy = "cross-origin"
	defaultFrameOptions              = "DENY"
	defaultReferrerPolicy            = "no-referrer"
	defaultContentTypeOptions        = "nosniff"
)

// SecurityConfig controls the hardening headers written on every response.
// Zero-valued fields fall back to the defaults. CrossOriginResourcePolicy
// stays cross-origin so a frontend on another origin can embed the thumbnails
// served under /public/; tighten it to same-site when both share a site.
type SecurityConfig struct {
	ContentSecurityPolicy     string
	CrossOriginResourcePolicy string
	FrameOptions              string
	ReferrerPolicy            string
	ContentTypeOptions        string
}

func defaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		ContentSecurityPolicy:     defaultContentSecurityPolicy,
		CrossOriginResourcePolicy: defaultCrossOriginResourcePolicy,
		FrameOptions:              defaultFrameOptions,
		ReferrerPolicy:            defaultReferrerPolicy,
		ContentTypeOptions:        defaultContentTypeOptions,
	}
}

func (cfg SecurityConfig) withDefaults() SecurityConfig {
	defaults := defaultSecurityConfig()
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = defaults.ContentSecurityPolicy
	}
	if cfg.CrossOriginResourcePolicy == "" {
		cfg.CrossOriginResourcePolicy = defaults.CrossOriginResourcePolicy
	}
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = defaults.FrameOptions
	}
	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = defaults.ReferrerPolicy
	}
	if cfg.ContentTypeOptions == "" {
		cfg.ContentTypeOptions = defaults.ContentTypeOptions
	}
	return cfg
}

func (cfg SecurityConfig) headers() [][2]string {
	return [][2]string{
		{"Content-Security-Policy", cfg.ContentSecurityPolicy},
		{"Cross-Origin-Resource-Policy", cfg.CrossOriginResourcePolicy},
		{"X-Frame-Options", cfg.FrameOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
	}
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	headers := cfg.withDefaults().headers()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, header := range headers {
			w.Header().Set(header[0], header[1])
		}
		next.ServeHTTP(w, r)
	})
}
