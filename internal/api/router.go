package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/catalogetl/internal/api/handler"
	"github.com/timmy/catalogetl/internal/api/middleware"
	"github.com/timmy/catalogetl/internal/service"
)

// RouterConfig holds router settings.
type RouterConfig struct {
	Mode           string
	AllowedOrigins []string
	HealthChecks   map[string]handler.HealthCheck
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	ingestService *service.IngestService,
	searchService *service.SearchService,
	cfg RouterConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	healthHandler := handler.NewHealthHandler(cfg.HealthChecks)
	jobHandler := handler.NewJobHandler(ingestService)
	searchHandler := handler.NewSearchHandler(searchService)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.POST("/jobs", jobHandler.StartJob)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.GET("/jobs/:id/invalid-items", jobHandler.ListInvalidItems)

		// Catalog
		v1.GET("/items/:sku", searchHandler.GetItem)
		v1.POST("/search", searchHandler.TextSearch)
	}

	return r
}
