package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sports-manager/backend/config"
	"sports-manager/backend/internal/api/handler"
	"sports-manager/backend/internal/api/router"
	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/geo"
	"sports-manager/backend/internal/recommender"
	"sports-manager/backend/internal/repository"
	"sports-manager/backend/internal/service"
	"sports-manager/backend/internal/trigger"
	"sports-manager/backend/pkg/database"
	"sports-manager/backend/pkg/jwt"
	applogger "sports-manager/backend/pkg/logger"
	"sports-manager/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	rollback := flag.Int("rollback", 0, "回滚指定步数的数据库迁移后退出")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("trigger_enabled", cfg.Trigger.Enabled),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if *rollback > 0 {
		if err := database.RollbackMigrations(sqlDB, *rollback, logger); err != nil {
			logger.Fatal("数据库回滚失败", zap.Error(err))
		}
		return
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：失败时降级，运行锁/黑名单/限流不可用）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，运行锁与限流将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 分配引擎
	planner := engine.NewPlanner(engine.Config{
		Scoring: engine.ScoringConfig{
			Levels:              engine.NewLevelRanking(cfg.Engine.Levels),
			ExperienceNormYears: cfg.Engine.ExperienceNormYears,
			DefaultDistanceKm:   cfg.Engine.DefaultDistanceKm,
			PartnerDelta:        cfg.Engine.PartnerDelta,
			RationaleThreshold:  cfg.Engine.RationaleThreshold,
		},
		DefaultRefsNeeded: cfg.Engine.DefaultRefsNeeded,
		DefaultGameLength: cfg.Engine.DefaultGameLength,
		BackToBackGap:     cfg.Engine.BackToBackGap,
		ModelTimeout:      cfg.Model.Timeout,
	}, geo.DistanceToVenue, newRecommender(cfg, logger))
	executor := engine.NewExecutor(repository.NewEngineStore(db), service.NewRunAuditLogger(logger), logger)

	// 7. 依赖注入: Repository → Service → Handler
	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		logger.Fatal("解析引擎时区失败", zap.String("timezone", cfg.Engine.Timezone), zap.Error(err))
	}
	repo := repository.NewRepository(db)
	svc := service.NewService(opts, repo, planner, executor, rdb, logger)
	h := handler.NewHandler(svc)

	// 8. 初始化路由
	r, err := router.Setup(cfg, h, jwtMgr, rdb, logger)
	if err != nil {
		logger.Fatal("初始化路由失败", zap.Error(err))
	}

	// 9. 定时触发
	var trg *trigger.Trigger
	if cfg.Trigger.Enabled {
		trg, err = trigger.New(cfg.Trigger, repo.Rule, svc.Run, logger)
		if err != nil {
			logger.Fatal("初始化定时触发失败", zap.String("spec", cfg.Trigger.Spec), zap.Error(err))
		}
		trg.Start()
	}

	// 10. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // 同步运行可能等待外部模型
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if trg != nil {
		if err := trg.Stop(ctx); err != nil {
			logger.Warn("等待定时任务结束超时", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	sqlDB.Close()
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// newRecommender 未配置 endpoint 时返回 nil 接口，external_model 策略将不可用
func newRecommender(cfg *config.Config, logger *zap.Logger) engine.Recommender {
	if cfg.Model.Endpoint == "" {
		logger.Info("未配置外部推荐服务，external_model 策略不可用")
		return nil
	}
	return recommender.NewClient(&cfg.Model, logger)
}
