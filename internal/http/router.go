package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/config"
	"github.com/lapor-kita/backend/internal/db"
	"github.com/lapor-kita/backend/internal/http/handlers"
	"github.com/lapor-kita/backend/internal/http/middleware"
	"github.com/lapor-kita/backend/internal/service"
	"github.com/lapor-kita/backend/internal/telemetry"
)

func Router(cfg config.Config, store *db.Store, processor *service.Processor, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     store,
		Processor: processor,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	api := r.Group("/api")
	{
		api.POST("/reports", h.CreateReport)
		api.GET("/jobs/:id", h.JobStatus)
		api.GET("/clusters", h.ClustersList)
		api.POST("/process/run", h.ProcessRun)
	}

	return r
}
