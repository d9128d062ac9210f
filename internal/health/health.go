package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

const (
	// maxGoroutines 存活检查的协程数上限
	maxGoroutines = 10000

	// uploadCheckTimeout 上传目录检查超时
	uploadCheckTimeout = 2 * time.Second

	// mailDialTimeout 邮件服务器连通性检查超时
	mailDialTimeout = 5 * time.Second
)

// 检查项名称
const (
	CheckGoroutines = "goroutine-threshold"
	CheckUploadDir  = "upload-dir"
	CheckMail       = "mail-server"
)

// UploadProbe 上传目录可用性探测
type UploadProbe interface {
	Health() error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health  healthcheck.Handler
	uploads UploadProbe
	logger  *zap.Logger

	mu   sync.RWMutex
	mail healthcheck.Check
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(uploads UploadProbe, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:  healthcheck.NewHandler(),
		uploads: uploads,
		logger:  logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 协程泄漏时进程视为不健康
	hc.health.AddLivenessCheck(CheckGoroutines, healthcheck.GoroutineCountCheck(maxGoroutines))

	// 上传目录不可写时无法接收报修
	hc.health.AddReadinessCheck(CheckUploadDir, healthcheck.Timeout(hc.uploads.Health, uploadCheckTimeout))
}

// AddMailProbe 定期探测邮件服务器 TCP 连通性，结果计入就绪检查
//
// 探测在后台按 interval 执行，ctx 取消后停止。只有 SMTP 驱动需要调用。
func (hc *HealthChecker) AddMailProbe(ctx context.Context, addr string, interval time.Duration) {
	check := healthcheck.AsyncWithContext(ctx, healthcheck.TCPDialCheck(addr, mailDialTimeout), interval)

	hc.mu.Lock()
	hc.mail = check
	hc.mu.Unlock()

	hc.health.AddReadinessCheck(CheckMail, check)
	hc.logger.Info("Mail server probe enabled", zap.String("addr", addr), zap.Duration("interval", interval))
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行健康检查
//
// 返回值:
//   - map[string]string: 每个检查项的结果，OK 或 ERROR 加原因
//   - bool: 所有检查项是否都通过
func (hc *HealthChecker) CheckHealth() (map[string]string, bool) {
	results := make(map[string]string)
	healthy := true

	record := func(name string, err error) {
		if err != nil {
			results[name] = fmt.Sprintf("ERROR: %v", err)
			healthy = false
			hc.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			return
		}
		results[name] = "OK"
	}

	record(CheckUploadDir, hc.uploads.Health())

	hc.mu.RLock()
	mail := hc.mail
	hc.mu.RUnlock()
	if mail != nil {
		record(CheckMail, mail())
	} else {
		results[CheckMail] = "NOT_CONFIGURED"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results, healthy
}
