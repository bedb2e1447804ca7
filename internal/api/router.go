package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/pricebook/internal/api/handler"
	"github.com/timmy/pricebook/internal/api/middleware"
	"github.com/timmy/pricebook/internal/config"
	"github.com/timmy/pricebook/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterDeps are the collaborators the HTTP layer serves.
type RouterDeps struct {
	Pricing  *service.PricingService
	Activity handler.ActivityReader
	DB       handler.Pinger // optional
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	modeHandler := handler.NewModeHandler(deps.Pricing.Registry())
	pricingHandler := handler.NewPricingHandler(deps.Pricing)
	activityHandler := handler.NewActivityHandler(deps.Activity)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Organization())
	{
		// Modes
		v1.GET("/modes", modeHandler.List)
		v1.GET("/modes/presets", modeHandler.Presets)
		v1.POST("/modes", modeHandler.Create)
		v1.DELETE("/modes/:id", modeHandler.Delete)
		v1.POST("/modes/:id/estimates", modeHandler.RecordEstimate)

		// Preview
		v1.POST("/preview", pricingHandler.Preview)

		// Jobs
		v1.POST("/jobs", pricingHandler.CreateJob)
		v1.POST("/jobs/undo", pricingHandler.CreateUndoJob)
		v1.GET("/jobs/active", pricingHandler.ActiveJobs)
		v1.GET("/jobs/:id", pricingHandler.GetJob)
		v1.GET("/jobs/:id/report", pricingHandler.Report)
		v1.POST("/jobs/:id/undo", pricingHandler.Undo)
		v1.POST("/jobs/:id/cancel", pricingHandler.CancelJob)

		// Activity
		v1.GET("/activity", activityHandler.List)
	}

	return r
}
