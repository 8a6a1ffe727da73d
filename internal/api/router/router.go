package router

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/api/handler"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/api/middleware"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/jwt"
)

// maxBodyBytes 操作接口请求体上限
const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎
// limiter 为 nil 时不限流（Redis 不可用）
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	tmpl *template.Template,
	static http.FileSystem,
	jwtMgr *jwt.Manager,
	limiter middleware.RateLimiter,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(tmpl)

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rate_limit": limiter != nil})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.StaticFS("/static", static)
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/attendance")
	})

	// ── 出勤页面 ──
	attendance := r.Group("/attendance")
	attendance.Use(middleware.Session(jwtMgr, &cfg.Session, logger))
	{
		attendance.GET("", h.Attendance.Page)
		attendance.GET("/grid", h.Attendance.Grid)

		actions := attendance.Group("/actions")
		actions.Use(middleware.BodyLimit(maxBodyBytes))
		actions.Use(middleware.RateLimit(limiter, cfg.RateLimit.ActionsPerMinute, time.Minute))
		{
			actions.POST("/:action", h.Attendance.Action)
		}

		// 导出
		attendance.POST("/export.csv", middleware.BodyLimit(maxBodyBytes), h.Export.ExportCSV)
		attendance.GET("/export.xlsx", h.Export.ExportExcel)
		attendance.GET("/schedule.ics", h.Export.ExportScheduleICS)
	}

	return r
}
