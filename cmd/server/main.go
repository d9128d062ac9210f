package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repairdesk/backend/internal/config"
	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/health"
	"repairdesk/backend/internal/logger"
	"repairdesk/backend/internal/mailer"
	"repairdesk/backend/internal/monitoring"
	"repairdesk/backend/internal/service"
	"repairdesk/backend/internal/storage/filesystem"
	httptransport "repairdesk/backend/internal/transport/http"
)

const (
	// uptimeInterval 运行时长指标刷新间隔
	uptimeInterval = 15 * time.Second

	// mailProbeInterval SMTP 连通性探测间隔
	mailProbeInterval = time.Minute

	// dispatchFailureThreshold 两次告警检查之间发送失败达到该次数时告警
	dispatchFailureThreshold = 3
)

// main 启动报修服务：HTTP 接口、过期图片清理与告警检查。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting repair service",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("mail_driver", cfg.Mail.Driver),
		zap.String("timezone", cfg.App.Timezone),
	)

	// 初始化上传目录
	store, err := filesystem.NewStore(cfg.Upload.Dir)
	if err != nil {
		log.Fatal("failed to initialize upload directory", zap.String("dir", cfg.Upload.Dir), zap.Error(err))
	}
	log.Info("upload directory initialized", zap.String("path", store.BasePath()))

	// 初始化邮件发送器
	sender, err := mailer.New(cfg.Mail, log)
	if err != nil {
		log.Fatal("failed to initialize mailer", zap.Error(err))
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化服务层
	uploads := service.NewUploadService(store, metrics, log.Named("uploads"))
	validator := domain.NewRepairValidator(domain.WithLocation(cfg.App.Location))
	assembler := service.NewAssembler(cfg.App.Location)
	repairs := service.NewRepairService(uploads, validator, assembler, sender, cfg.Mail.Driver, metrics, log.Named("repair"))

	sweeper := service.NewSweeper(store, metrics, log.Named("retention"),
		service.WithSweepInterval(cfg.Retention.Interval),
		service.WithMaxAge(cfg.Retention.MaxAge),
	)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(store, log.Named("health"))
	if cfg.Mail.Driver == config.MailDriverSMTP {
		healthChecker.AddMailProbe(groupCtx, cfg.Mail.SMTP.Addr(), mailProbeInterval)
	}

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log.Named("alerts"))
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.StaleUploadsRule(uploadLister(store), cfg.Monitoring.StaleUploadAfter))
	alertManager.AddRule(monitoring.UploadDirectoryRule(store.Health))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(cfg.Monitoring.MemoryAlertThreshMB))
	alertManager.AddRule(monitoring.DispatchFailureRule(metrics.SubmissionsTotal, dispatchFailureThreshold))

	log.Info("monitoring system initialized")

	// 创建 HTTP 服务器
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:  cfg,
		Repairs: repairs,
		Health:  healthChecker,
		Metrics: metrics,
		Logger:  log,
	})

	httpAddr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 过期图片清理 goroutine
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	// 告警监控 goroutine
	group.Go(func() error {
		log.Info("starting alert monitoring", zap.Duration("interval", cfg.Monitoring.AlertInterval))
		alertManager.StartMonitoring(groupCtx, cfg.Monitoring.AlertInterval)
		return nil
	})

	// 运行时长指标 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(uptimeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateSystemUptime()
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 等待进行中的报修请求完成，它们会各自删除已接收的图片
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// uploadLister 把上传目录列表转换为告警规则使用的格式
func uploadLister(store *filesystem.Store) monitoring.UploadLister {
	return func() ([]monitoring.UploadEntry, error) {
		entries, err := store.List()
		if err != nil {
			return nil, err
		}

		out := make([]monitoring.UploadEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, monitoring.UploadEntry{Name: e.Name, ModTime: e.ModTime})
		}
		return out, nil
	}
}
