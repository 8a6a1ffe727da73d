package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/api/handler"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/api/middleware"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/api/router"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/service"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/jwt"
	applogger "github.com/stupidgiraffe/Vitamin-English-sub001/pkg/logger"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/metrics"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/redis"
	"github.com/stupidgiraffe/Vitamin-English-sub001/web"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("ATTN_CONFIG"))
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
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 4. 连接 Redis（可选：连接失败时降级为进程内视图状态，且不限流）
	var views repository.ViewStateRepository
	var limiter middleware.RateLimiter
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，视图状态改为进程内存储，操作接口不限流", zap.Error(err))
		rdb = nil
		views = repository.NewMemoryViewStateRepo(cfg.Redis.ViewStateTTL)
	} else {
		views = repository.NewRedisViewStateRepo(rdb, cfg.Redis.ViewStateTTL)
		limiter = rdb
	}

	// 5. 模板与会话
	tmpl, err := web.Templates()
	if err != nil {
		logger.Fatal("解析页面模板失败", zap.Error(err))
	}
	jwtMgr := jwt.NewManager(&cfg.Session)

	// 6. 依赖注入: Repository → Service → Handler
	api := repository.NewAPIClient(&cfg.API, m, logger)
	repo := repository.NewRepository(api, views)
	svc := service.NewService(cfg, repo, m, logger)
	h := handler.NewHandler(svc, tmpl, logger)

	// 7. 初始化路由
	gin.SetMode(gin.ReleaseMode)
	engine := router.Setup(cfg, h, tmpl, web.Static(), jwtMgr, limiter, reg, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
