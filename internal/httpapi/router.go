package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/config"
	"github.com/suPer8Hu/vidblog/internal/httpapi/handlers"
	"github.com/suPer8Hu/vidblog/internal/httpapi/middleware"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/ratelimit"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Pipeline *pipeline.Service
	Limiter  ratelimit.Limiter
	// Queue may be nil; async job creation is then rejected.
	Queue handlers.JobQueue
}

func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, string(pipeline.KindNotFound), "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	h := handlers.NewHandler(deps.DB, cfg, deps.Pipeline, deps.Queue)

	r.GET("/ping", h.Ping)

	// users
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/publish-target", h.GetPublishTarget)
	authGroup.PUT("/publish-target", h.PutPublishTarget)
	authGroup.GET("/jobs/:id", h.GetJob)

	// every route that starts remote work is rate limited per user
	limited := authGroup.Group("/")
	if deps.Limiter != nil {
		limited.Use(middleware.RateLimit(deps.Limiter))
	}
	limited.POST("/jobs", h.CreateJob)
	limited.POST("/jobs/:id/process", h.ProcessJob)
	limited.POST("/jobs/:id/generate", h.GenerateJob)
	limited.POST("/jobs/:id/publish", h.PublishJob)
	limited.POST("/generate", h.GenerateInline)
	limited.POST("/workflow", h.Workflow)
	return r
}
