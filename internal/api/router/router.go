package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sports-manager/backend/config"
	"sports-manager/backend/internal/api/handler"
	"sports-manager/backend/internal/api/middleware"
	"sports-manager/backend/internal/dto"
	"sports-manager/backend/pkg/jwt"
	"sports-manager/backend/pkg/redis"
)

const defaultBodyLimit = 1 << 20

// Setup 初始化并返回 Gin 路由引擎；rdb 为 nil 时跳过黑名单与限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}

	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	admin := middleware.RoleAuth(jwt.RoleAdmin)
	runner := middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleAssignor)

	// ── API v1（全部需要认证）──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb))
	{
		// 分配规则模块
		rules := v1.Group("/assignment-rules")
		{
			rules.GET("", h.Rule.ListRules)
			rules.POST("", admin, h.Rule.CreateRule)
			rules.GET("/:id", h.Rule.GetRule)
			rules.PUT("/:id", admin, h.Rule.UpdateRule)
			rules.DELETE("/:id", admin, h.Rule.DeleteRule)
			rules.GET("/:id/next-run", h.Rule.PreviewNextRun)

			rules.POST("/:id/run", runner, middleware.RateLimit(rdb, cfg.Server.RunRateLimit, time.Minute), h.Run.RunRule)
			rules.GET("/:id/runs", h.Run.ListRuns)

			rules.GET("/:id/partner-preferences", h.Rule.ListPartnerPreferences)
			rules.POST("/:id/partner-preferences", admin, h.Rule.CreatePartnerPreference)
			rules.DELETE("/:id/partner-preferences/:prefId", admin, h.Rule.DeletePartnerPreference)
		}

		// 运行记录模块
		runs := v1.Group("/assignment-runs")
		{
			runs.GET("/:id", h.Run.GetRun)
			runs.GET("/:id/calendar.ics", h.Run.ExportCalendar)
		}
	}

	return r, nil
}
