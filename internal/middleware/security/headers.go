package security

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	CSP string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
	CrossOriginOpener   string
	CrossOriginResource string
	CacheControl        string
}

// DefaultHeadersConfig suits a JSON API that never serves documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                   "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:     "same-origin",
		CrossOriginResource:   "same-site",
		CacheControl:          "no-store",
	}
}

// Headers applies the configured headers to every response.
func Headers(config HeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		set := func(key, value string) {
			if value != "" {
				h.Set(key, value)
			}
		}
		set("Content-Security-Policy", config.CSP)
		set("X-Frame-Options", config.XFrameOptions)
		set("X-Content-Type-Options", config.XContentTypeOptions)
		set("Referrer-Policy", config.ReferrerPolicy)
		set("Permissions-Policy", config.PermissionsPolicy)
		set("Cross-Origin-Opener-Policy", config.CrossOriginOpener)
		set("Cross-Origin-Resource-Policy", config.CrossOriginResource)
		set("Cache-Control", config.CacheControl)
		// only over TLS
		if c.Request.TLS != nil {
			set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
