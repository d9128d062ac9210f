package service

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repairdesk/backend/internal/monitoring"
	"repairdesk/backend/internal/storage/filesystem"
)

// ageFile 在上传目录中写入文件并设置修改时间
func ageFile(t *testing.T, store *filesystem.Store, name string, mtime time.Time) {
	t.Helper()

	path := store.Path(name)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestSweeperRunOnce(t *testing.T) {
	store, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	ageFile(t, store, "old.jpg", now.Add(-25*time.Hour))
	ageFile(t, store, "recent.jpg", now.Add(-1*time.Hour))

	metrics := monitoring.NewMetrics()
	sweeper := NewSweeper(store, metrics, zap.NewNop(), WithSweeperClock(func() time.Time { return now }))

	count, err := sweeper.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoFileExists(t, store.Path("old.jpg"))
	assert.FileExists(t, store.Path("recent.jpg"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SweepDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UploadDirFiles))
}

func TestSweeperMaxAgeOption(t *testing.T) {
	store, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	ageFile(t, store, "two-hours.jpg", now.Add(-2*time.Hour))

	sweeper := NewSweeper(store, nil, zap.NewNop(),
		WithMaxAge(time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)

	count, err := sweeper.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSweeperAdvancingClock(t *testing.T) {
	store, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	created := time.Now()
	ageFile(t, store, "a.jpg", created)

	current := created
	sweeper := NewSweeper(store, nil, zap.NewNop(), WithSweeperClock(func() time.Time { return current }))

	count, err := sweeper.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	current = created.Add(DefaultMaxUploadAge + time.Minute)
	count, err = sweeper.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// countingStore 统计清理调用次数
type countingStore struct {
	calls atomic.Int32
}

func (c *countingStore) CleanupExpired(time.Time) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func (c *countingStore) Stats() (filesystem.Stats, error) {
	return filesystem.Stats{}, nil
}

func TestSweeperStartStop(t *testing.T) {
	store := &countingStore{}
	sweeper := NewSweeper(store, nil, zap.NewNop(), WithSweepInterval(10*time.Millisecond))

	sweeper.Start(context.Background())
	sweeper.Start(context.Background())

	assert.Eventually(t, func() bool { return store.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	sweeper.Stop()
	stopped := store.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, store.calls.Load(), "停止后不再执行")

	sweeper.Stop()
}

func TestSweeperRunsImmediately(t *testing.T) {
	store := &countingStore{}
	sweeper := NewSweeper(store, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sweeper.Run(ctx) }()

	assert.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
