package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/server/handlers/auth"
	"github.com/openmined/docsync/internal/server/handlers/nodes"
	"github.com/openmined/docsync/internal/server/handlers/poll"
	"github.com/openmined/docsync/internal/server/handlers/remote"
	"github.com/openmined/docsync/internal/server/handlers/repo"
	"github.com/openmined/docsync/internal/server/middlewares"
	"github.com/openmined/docsync/internal/version"
)

func SetupRoutes(svc *Services, config *HTTPConfig) (http.Handler, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	authH := auth.New(svc.Auth)
	remoteH := remote.New(svc.Accounts)
	nodesH := nodes.New(svc.Engine)
	pollH := poll.New(svc.Poller)
	repoH := repo.New(svc.Repo)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS(config.CORSOrigins))
	if config.TLS() {
		r.Use(middlewares.HSTS())
	}

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	rate := config.RateLimit
	if rate == "" {
		rate = DefaultRateLimit
	}
	limit, err := middlewares.RateLimiter(rate)
	if err != nil {
		return nil, err
	}

	r.POST("/auth/refresh", limit, authH.Refresh)

	v1 := r.Group("/api/v1")
	v1.Use(limit, middlewares.JWTAuth(svc.Auth))
	{
		// remote account
		v1.GET("/remote/user", remoteH.User)
		v1.DELETE("/remote/user", remoteH.Delink)
		v1.POST("/remote/authorize", remoteH.Authorize)
		v1.POST("/remote/complete", remoteH.Complete)
		v1.GET("/remote/profile", remoteH.Profile)

		// sync links
		v1.POST("/nodes/link", nodesH.Link)
		v1.POST("/nodes/unlink", nodesH.Unlink)
		v1.POST("/nodes/pull", nodesH.Pull)
		v1.GET("/nodes/:ref/status", nodesH.Status)

		v1.POST("/sync/poll", pollH.Poll)

		// repository
		v1.GET("/repo/sites", repoH.ListSites)
		v1.POST("/repo/sites", repoH.CreateSite)
		v1.GET("/repo/resolve", repoH.Resolve)
		v1.GET("/repo/nodes/:ref", repoH.GetNode)
		v1.DELETE("/repo/nodes/:ref", repoH.Delete)
		v1.GET("/repo/nodes/:ref/children", repoH.Children)
		v1.POST("/repo/nodes/:ref/folders", repoH.CreateFolder)
		v1.PUT("/repo/nodes/:ref/files/:name", repoH.CreateFile)
		v1.GET("/repo/nodes/:ref/content", repoH.ReadContent)
		v1.PUT("/repo/nodes/:ref/content", repoH.WriteContent)
		v1.POST("/repo/nodes/:ref/move", repoH.Move)
		v1.POST("/repo/nodes/:ref/copy", repoH.Copy)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
