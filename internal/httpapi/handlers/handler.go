package handlers

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/config"
	"github.com/suPer8Hu/vidblog/internal/httpapi/middleware"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/store/rabbitmq"
	"gorm.io/gorm"
)

// JobQueue hands jobs to the background worker.
type JobQueue interface {
	PublishJob(ctx context.Context, msg rabbitmq.JobMessage) error
}

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Pipeline *pipeline.Service
	// Queue is nil when async processing is disabled.
	Queue JobQueue
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *pipeline.Service, queue JobQueue) *Handler {
	return &Handler{DB: db, Cfg: cfg, Pipeline: svc, Queue: queue}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, http.StatusOK, gin.H{"message": "pong"})
}

func callerID(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, string(pipeline.KindAuthentication), "unauthorized")
	}
	return uid, ok
}

// errorBody maps a pipeline error to the response envelope. Unclassified
// errors are logged and reported without detail.
func errorBody(c *gin.Context, err error) common.ErrorBody {
	kind := pipeline.KindOf(err)
	body := common.ErrorBody{Code: string(kind), Message: err.Error(), StatusCode: kind.StatusCode()}
	if kind == pipeline.KindInternal {
		log.Printf("[%s] request_id=%s err=%v", c.FullPath(), c.GetString(middleware.RequestIDKey), err)
		body.Message = "internal server error"
	}
	if ra := pipeline.RetryAfterOf(err); ra > 0 {
		body.RetryAfter = int(math.Ceil(ra.Seconds()))
		c.Header("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	return body
}

func failErr(c *gin.Context, err error) {
	common.FailBody(c, errorBody(c, err))
}

func badRequest(c *gin.Context, msg string) {
	common.Fail(c, http.StatusBadRequest, string(pipeline.KindValidation), msg)
}
