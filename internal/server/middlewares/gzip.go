package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// file bodies go out as stored, their type is whatever the user uploaded
var contentPaths = []string{
	`^/api/v1/repo/nodes/[^/]+/content$`,
}

func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths([]string{"/healthz"}),
		gzip.WithExcludedPathsRegexs(contentPaths),
	)
}
