package server

import "net/http"

const (
	defaultFrameAncestors     = "'none'"
	defaultFrameOptions       = "DENY"
	defaultReferrerPolicy     = "no-referrer"
	defaultPermissionsPolicy  = "camera=(), microphone=(), geolocation=()"
	defaultContentTypeOptions = "nosniff"
)

// SecurityConfig overrides the hardening headers attached to every response.
// Empty fields keep the locked-down defaults, which assume the server fronts
// a JSON API and never renders markup. Deployments serving a browser client
// from the same origin loosen the ContentSecurityPolicy here.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameAncestors        string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string
	ContentTypeOptions    string
}

// apiContentSecurityPolicy denies every resource type. API responses embed
// nothing, so the only directive worth parameterising is frame-ancestors.
func apiContentSecurityPolicy(frameAncestors string) string {
	if frameAncestors == "" {
		frameAncestors = defaultFrameAncestors
	}
	return "default-src 'none'; " +
		"frame-ancestors " + frameAncestors + "; " +
		"base-uri 'none'; " +
		"form-action 'none'"
}

// headerSet resolves the configuration into literal header pairs once, at
// middleware construction.
func (cfg SecurityConfig) headerSet() [][2]string {
	if cfg.FrameAncestors == "" {
		cfg.FrameAncestors = defaultFrameAncestors
	}
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = apiContentSecurityPolicy(cfg.FrameAncestors)
	}
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = defaultFrameOptions
	}
	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = defaultReferrerPolicy
	}
	if cfg.PermissionsPolicy == "" {
		cfg.PermissionsPolicy = defaultPermissionsPolicy
	}
	if cfg.ContentTypeOptions == "" {
		cfg.ContentTypeOptions = defaultContentTypeOptions
	}
	return [][2]string{
		{"Content-Security-Policy", cfg.ContentSecurityPolicy},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
	}
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	headers := cfg.headerSet()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, pair := range headers {
			w.Header().Set(pair[0], pair[1])
		}
		next.ServeHTTP(w, r)
	})
}
