package app

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/moracollect-api/internal/handler"
	"github.com/noah-isme/moracollect-api/internal/middleware"
	"github.com/noah-isme/moracollect-api/pkg/config"
	"github.com/noah-isme/moracollect-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/moracollect-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/moracollect-api/pkg/middleware/requestid"
)

// Router builds the HTTP surface. Contributor routes live under the API
// prefix behind bearer auth; operator routes additionally need the admin role.
func (a *App) Router() *gin.Engine {
	cfg, svc := a.Cfg, a.Services

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics, "/metrics"))

	metricsHandler := handler.NewMetricsHandler(svc.Metrics, a.readinessChecks())
	r.GET("/healthz", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	submissions := handler.NewSubmissionHandler(svc.Registration, svc.Deletion, svc.Mirror)
	profiles := handler.NewProfileHandler(svc.Profiles)
	listings := handler.NewListingHandler(svc.Snapshots, svc.Leaderboard)
	admin := handler.NewAdminHandler(svc.Snapshots, svc.Backfill, svc.StatsExport, svc.OrphanGC)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(svc.Identity), middleware.WithResponseMeta())
	{
		api.GET("/ping", profiles.Ping)

		api.POST("/submissions", submissions.Register)
		api.DELETE("/submissions/:id", submissions.Delete)
		api.GET("/me/submissions", submissions.ListMine)
		api.PATCH("/me/profile", profiles.Update)

		api.GET("/collections", listings.Collections)
		api.GET("/collections/:collectionId/items", listings.Items)
		api.GET("/leaderboard", listings.Leaderboard)

		ops := api.Group("/admin", middleware.RequireRoles(cfg.Auth.AdminRole))
		ops.POST("/snapshots/rebuild", admin.RebuildSnapshots)
		ops.POST("/contributor-totals/backfill", admin.BackfillTotals)
		ops.GET("/stats/export", admin.ExportStats)
		ops.POST("/orphans/collect", admin.CollectOrphans)
	}

	return r
}

func (a *App) readinessChecks() map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{}
	if a.DB != nil {
		checks["postgres"] = func(ctx context.Context) error { return a.DB.PingContext(ctx) }
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}
