package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMaxAge bounds how long browsers cache a preflight answer
const corsMaxAge = 12 * time.Hour

// CORS admits browser calls from origins. No origins, or a "*" among them,
// admits every origin. Secrets are checked by SecretAuth, not by origin, so
// credentials are never allowed cross-site.
func CORS(origins ...string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Origin",
			"Accept",
			"Content-Type",
			SecretHeader,
			RequestIDHeader,
		},
		ExposeHeaders: []string{RequestIDHeader, "X-Trace-ID"},
		MaxAge:        corsMaxAge,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
