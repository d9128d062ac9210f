package httptransport

import (
	"net/http"
	"path"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repairdesk/backend/internal/config"
	"repairdesk/backend/internal/health"
	"repairdesk/backend/internal/middleware"
	"repairdesk/backend/internal/monitoring"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config  *config.Config
	Repairs RepairSubmitter
	Health  *health.HealthChecker
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = multipartMemory

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	router.Use(middleware.RequestID())
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	repairHandler := NewRepairHandler(deps.Repairs, deps.Logger)

	// 健康检查
	router.GET("/health", healthSummary(deps.Health))
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	api := router.Group("/api")
	{
		api.POST("/submit-repair", middleware.BodySizeLimit(middleware.SubmitBodyLimit), repairHandler.SubmitRepair)
		api.GET("/repair/rules", repairHandler.GetRules)
	}

	// 其余路径交给静态页面
	if deps.Config.Web.Dir != "" {
		router.NoRoute(staticHandler(deps.Config.Web.Dir))
	} else {
		router.NoRoute(func(c *gin.Context) { NotFound(c, MsgNotFound) })
	}

	return router
}

// corsConfig CORS 配置
func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	// 允许所有来源时不能同时列出具体来源
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			break
		}
	}

	return cfg
}

// healthSummary 汇总所有检查项
func healthSummary(hc *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, ok := hc.CheckHealth()

		status, code := "ok", http.StatusOK
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status": status,
			"checks": results,
		})
	}
}

// staticHandler 提供表单页面等静态资源
//
// /api 下未匹配的路径与非 GET 请求返回 JSON 404，不列目录。
func staticHandler(dir string) gin.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)

	return func(c *gin.Context) {
		p := c.Request.URL.Path
		method := c.Request.Method

		if strings.HasPrefix(p, "/api/") || (method != http.MethodGet && method != http.MethodHead) {
			NotFound(c, MsgNotFound)
			return
		}

		if !servable(root, p) {
			NotFound(c, MsgNotFound)
			return
		}

		files.ServeHTTP(c.Writer, c.Request)
	}
}

// servable 路径是普通文件，或是带 index.html 的目录
func servable(root http.FileSystem, p string) bool {
	f, err := root.Open(p)
	if err != nil {
		return false
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}

	index, err := root.Open(path.Join(p, "index.html"))
	if err != nil {
		return false
	}
	index.Close()
	return true
}
