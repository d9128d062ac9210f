package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"repairdesk/backend/internal/monitoring"
	"repairdesk/backend/internal/storage/filesystem"
)

// 默认清理策略
const (
	DefaultSweepInterval = 24 * time.Hour
	DefaultMaxUploadAge  = 24 * time.Hour
)

// ExpiringStore 支持按修改时间清理的存储
type ExpiringStore interface {
	CleanupExpired(cutoff time.Time) (int, error)
	Stats() (filesystem.Stats, error)
}

// SweeperOption 清理任务配置项
type SweeperOption func(*Sweeper)

// WithSweepInterval 设置清理间隔
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxAge 设置文件最大保留时间
func WithMaxAge(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithSweeperClock 替换时钟（测试用）
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// Sweeper 定期删除上传目录中的过期文件
//
// 正常流程中图片在请求结束时就已删除，这里兜底处理进程崩溃等情况留下的文件。
type Sweeper struct {
	store    ExpiringStore
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper 创建清理任务
func NewSweeper(store ExpiringStore, metrics *monitoring.Metrics, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		metrics:  metrics,
		logger:   logger,
		interval: DefaultSweepInterval,
		maxAge:   DefaultMaxUploadAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce 执行一次清理
//
// 返回值:
//   - int: 删除的文件数
//   - error: 目录读取失败或部分文件删除失败
func (s *Sweeper) RunOnce() (int, error) {
	now := s.now()
	count, err := s.store.CleanupExpired(now.Add(-s.maxAge))
	s.metrics.RecordSweep(count, err, now)

	if err != nil {
		for _, e := range multierr.Errors(err) {
			s.logger.Warn("Failed to remove expired upload", zap.Error(e))
		}
	}
	if count > 0 {
		s.logger.Info("Removed expired uploads", zap.Int("count", count), zap.Duration("max_age", s.maxAge))
	}

	if stats, serr := s.store.Stats(); serr == nil {
		s.metrics.UpdateUploadDir(stats.FileCount, stats.TotalBytes)
	}

	return count, err
}

// Run 启动时立即清理一次，之后每个间隔清理一次，直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Starting upload retention sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge),
	)

	_, _ = s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Upload retention sweeper stopped")
			return nil
		case <-ticker.C:
			_, _ = s.RunOnce()
		}
	}
}

// Start 在后台运行清理任务，重复调用无效
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop 停止后台清理任务并等待其退出
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
