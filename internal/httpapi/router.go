// Package httpapi is the thin HTTP surface for producers and observers of the task
// engine (spec's supplemented features): create a task, tail its frame stream over
// SSE, and expose metrics — grounded on the teacher's internal/server/router.go and
// internal/sse hub for the streaming protocol.
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/corrigan-tasks/engine/internal/follower"
	"github.com/corrigan-tasks/engine/internal/observability"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/store"
)

type Config struct {
	AllowOrigins []string
}

func DefaultConfig() Config {
	return Config{AllowOrigins: []string{"http://localhost:3000"}}
}

// NewRouter wires the engine's HTTP surface: POST /tasks, GET /tasks/:id/frames, and
// (when m is non-nil) GET /metrics.
func NewRouter(s store.TaskStore, f *follower.Follower, m *observability.Metrics, log *logger.Logger, cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("tasksd"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	h := &handler{store: s, follower: f, log: log.With("component", "httpapi")}

	router.GET("/healthcheck", healthCheck)
	if m != nil {
		router.GET("/metrics", gin.WrapH(observability.Handler()))
	}

	tasks := router.Group("/tasks")
	{
		tasks.POST("", h.createTask)
		tasks.GET("/:id/frames", h.followFrames)
	}

	return router
}

func healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
