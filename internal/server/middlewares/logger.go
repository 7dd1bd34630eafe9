package middlewares

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

// Logger writes one line per request. The caller set by JWTAuth is added as "user".
func Logger() gin.HandlerFunc {
	return slogGin.NewWithConfig(slog.Default().WithGroup("http"), slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		Filters: []slogGin.Filter{
			slogGin.IgnorePath("/", "/healthz"),
			slogGin.IgnoreMethod("OPTIONS"),
		},
	})
}

func setUser(ctx *gin.Context, user string) {
	ctx.Set(userContextKey, user)
	slogGin.AddCustomAttributes(ctx, slog.String("user", user))
}
