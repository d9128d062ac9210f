package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert 告警
type Alert struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Level      AlertLevel `json:"level"`
	Component  string     `json:"component"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AlertRule 告警规则
type AlertRule struct {
	ID        string
	Name      string
	Condition func() bool
	Level     AlertLevel
	Component string
	Message   string
	Cooldown  time.Duration // 同一规则两次触发之间的最小间隔
}

// maxAlertHistory 保留的历史告警条数
const maxAlertHistory = 100

// ruleState 单条规则的运行状态
type ruleState struct {
	lastTriggered time.Time
	active        *Alert
}

// AlertManager 告警管理器
//
// 每条规则同一时间最多一条活跃告警；条件恢复后自动解除。
type AlertManager struct {
	mu        sync.Mutex
	rules     []AlertRule
	states    map[string]*ruleState
	history   []*Alert
	receivers []AlertReceiver
	logger    *zap.Logger
	now       func() time.Time
}

// AlertReceiver 告警接收器接口
type AlertReceiver interface {
	SendAlert(alert *Alert) error
}

// NewAlertManager 创建告警管理器
func NewAlertManager(logger *zap.Logger) *AlertManager {
	return &AlertManager{
		states: make(map[string]*ruleState),
		logger: logger,
		now:    time.Now,
	}
}

// AddReceiver 添加告警接收器
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.receivers = append(am.receivers, receiver)
}

// AddRule 添加告警规则
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
	am.states[rule.ID] = &ruleState{}
}

// ResolveAlert 手动解除告警
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, st := range am.states {
		if st.active != nil && st.active.ID == alertID {
			am.resolveLocked(st)
			return
		}
	}
}

// resolveLocked 解除规则当前的活跃告警，调用方持有锁
func (am *AlertManager) resolveLocked(st *ruleState) {
	now := am.now()
	st.active.Resolved = true
	st.active.ResolvedAt = &now

	am.logger.Info("Alert resolved",
		zap.String("alert_id", st.active.ID),
		zap.String("component", st.active.Component),
	)
	st.active = nil
}

// GetAlerts 获取最近的告警记录
func (am *AlertManager) GetAlerts() []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	alerts := make([]Alert, 0, len(am.history))
	for _, alert := range am.history {
		alerts = append(alerts, *alert)
	}

	return alerts
}

// GetActiveAlerts 获取活跃告警
func (am *AlertManager) GetActiveAlerts() []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	alerts := make([]Alert, 0)
	for _, st := range am.states {
		if st.active != nil {
			alerts = append(alerts, *st.active)
		}
	}

	return alerts
}

// CheckRules 检查告警规则
//
// 条件在锁外求值，规则内部可以做 IO。新告警在释放锁后逐个发给接收器。
func (am *AlertManager) CheckRules() {
	am.mu.Lock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.Unlock()

	firing := make(map[string]bool, len(rules))
	for _, rule := range rules {
		firing[rule.ID] = rule.Condition()
	}

	am.mu.Lock()
	now := am.now()
	var triggered []*Alert
	for _, rule := range rules {
		st := am.states[rule.ID]

		if !firing[rule.ID] {
			if st.active != nil {
				am.resolveLocked(st)
			}
			continue
		}

		if st.active != nil || now.Sub(st.lastTriggered) < rule.Cooldown {
			continue
		}

		alert := &Alert{
			ID:        fmt.Sprintf("%s_%d", rule.ID, now.Unix()),
			Title:     rule.Name,
			Message:   rule.Message,
			Level:     rule.Level,
			Component: rule.Component,
			Timestamp: now,
		}
		st.active = alert
		st.lastTriggered = now

		am.history = append(am.history, alert)
		if len(am.history) > maxAlertHistory {
			am.history = am.history[len(am.history)-maxAlertHistory:]
		}
		triggered = append(triggered, alert)
	}
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	for _, alert := range triggered {
		am.logger.Info("Alert triggered",
			zap.String("alert_id", alert.ID),
			zap.String("level", string(alert.Level)),
			zap.String("component", alert.Component),
		)
		for _, receiver := range receivers {
			if err := receiver.SendAlert(alert); err != nil {
				am.logger.Error("Failed to send alert",
					zap.String("alert_id", alert.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// StartMonitoring 按间隔检查规则，直到 ctx 取消
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CheckRules()
		}
	}
}

// ========== 内置告警规则 ==========

// UploadEntry 上传目录中的文件概况
type UploadEntry struct {
	Name    string
	ModTime time.Time
}

// UploadLister 列出上传目录中的文件
type UploadLister func() ([]UploadEntry, error)

// StaleUploadsRule 残留上传告警规则
//
// 正常请求结束时图片已被删除，目录中出现超过 threshold 的文件说明释放路径有遗漏。
func StaleUploadsRule(list UploadLister, threshold time.Duration) AlertRule {
	return AlertRule{
		ID:   "stale_uploads",
		Name: "Stale Uploads",
		Condition: func() bool {
			entries, err := list()
			if err != nil {
				return false
			}
			cutoff := time.Now().Add(-threshold)
			for _, e := range entries {
				if e.ModTime.Before(cutoff) {
					return true
				}
			}
			return false
		},
		Level:     AlertLevelWarning,
		Component: "uploads",
		Message:   fmt.Sprintf("Upload directory holds files older than %s", threshold),
		Cooldown:  30 * time.Minute,
	}
}

// UploadDirectoryRule 上传目录不可写告警规则
func UploadDirectoryRule(health func() error) AlertRule {
	return AlertRule{
		ID:   "upload_directory",
		Name: "Upload Directory",
		Condition: func() bool {
			return health() != nil
		},
		Level:     AlertLevelCritical,
		Component: "uploads",
		Message:   "Upload directory is not writable",
		Cooldown:  1 * time.Minute,
	}
}

// HighMemoryUsageRule 高内存使用告警规则
func HighMemoryUsageRule(thresholdMB float64) AlertRule {
	return AlertRule{
		ID:   "high_memory_usage",
		Name: "High Memory Usage",
		Condition: func() bool {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			memoryUsageMB := float64(m.Alloc) / 1024 / 1024
			return memoryUsageMB > thresholdMB
		},
		Level:     AlertLevelWarning,
		Component: "memory",
		Message:   fmt.Sprintf("Memory usage exceeds %.0f MB", thresholdMB),
		Cooldown:  5 * time.Minute,
	}
}

// DispatchFailureRule 邮件发送失败告警规则
//
// 两次检查之间新增的发送失败次数达到 threshold 时触发。
func DispatchFailureRule(submissions *prometheus.CounterVec, threshold float64) AlertRule {
	var mu sync.Mutex
	last := counterValue(submissions, OutcomeDispatchError)

	return AlertRule{
		ID:   "dispatch_failures",
		Name: "Mail Dispatch Failures",
		Condition: func() bool {
			mu.Lock()
			defer mu.Unlock()

			current := counterValue(submissions, OutcomeDispatchError)
			delta := current - last
			last = current
			return delta >= threshold
		},
		Level:     AlertLevelCritical,
		Component: "mailer",
		Message:   fmt.Sprintf("At least %.0f repair mails failed to send since last check", threshold),
		Cooldown:  10 * time.Minute,
	}
}

// counterValue 读取计数器当前值
func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// ========== 告警接收器实现 ==========

// LogAlertReceiver 日志告警接收器
type LogAlertReceiver struct {
	logger *zap.Logger
}

// NewLogAlertReceiver 创建日志告警接收器
func NewLogAlertReceiver(logger *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{logger: logger}
}

// SendAlert 发送告警到日志
func (lar *LogAlertReceiver) SendAlert(alert *Alert) error {
	switch alert.Level {
	case AlertLevelCritical:
		lar.logger.Error("CRITICAL ALERT",
			zap.String("alert_id", alert.ID),
			zap.String("title", alert.Title),
			zap.String("message", alert.Message),
			zap.String("component", alert.Component),
			zap.Time("timestamp", alert.Timestamp),
		)
	case AlertLevelWarning:
		lar.logger.Warn("WARNING ALERT",
			zap.String("alert_id", alert.ID),
			zap.String("title", alert.Title),
			zap.String("message", alert.Message),
			zap.String("component", alert.Component),
			zap.Time("timestamp", alert.Timestamp),
		)
	case AlertLevelInfo:
		lar.logger.Info("INFO ALERT",
			zap.String("alert_id", alert.ID),
			zap.String("title", alert.Title),
			zap.String("message", alert.Message),
			zap.String("component", alert.Component),
			zap.Time("timestamp", alert.Timestamp),
		)
	}

	return nil
}
