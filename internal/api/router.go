package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/vidqa/internal/api/handler"
	"github.com/timmy/vidqa/internal/api/middleware"
	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/pipeline"
	"github.com/timmy/vidqa/internal/service"
)

// RouterDeps holds everything the HTTP surface needs.
type RouterDeps struct {
	Queries        *service.QueryService
	Pipeline       *pipeline.Pipeline
	Docs           *docstore.Store
	Logger         *logger.Logger
	AllowedOrigins []string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  deps.AllowedOrigins,
		AllowAllOrigins: len(deps.AllowedOrigins) == 0,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	queryHandler := handler.NewQueryHandler(deps.Queries, deps.Pipeline, deps.Docs, deps.Logger)
	videoHandler := handler.NewVideoHandler(deps.Docs, deps.Logger)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Query pipelines
		v1.POST("/query/async", queryHandler.QueryAsync)
		v1.POST("/process_and_query/async", queryHandler.ProcessAndQueryAsync)
		v1.GET("/query/status/:video_id", queryHandler.Status)

		// Videos
		v1.GET("/videos/foryou", videoHandler.ForYou)
	}

	return r
}
