package middlewares

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

// CORS lets browser tools call the API from origins. No origins means any origin.
// Bearer tokens travel in headers, so cookies are never allowed.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", userHeader, slogGin.RequestIDHeaderKey},
		ExposeHeaders: []string{slogGin.RequestIDHeaderKey, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
