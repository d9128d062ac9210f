package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/multierr"
)

var (
	// ErrExceedsLimit 写入内容超过允许的字节数
	ErrExceedsLimit = errors.New("content exceeds size limit")

	// ErrInvalidName 存储文件名不合法
	ErrInvalidName = errors.New("invalid storage name")
)

// copyBufferSize 分块写入的缓冲区大小
const copyBufferSize = 32 * 1024

// Entry 上传目录中的一个文件
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Stats 上传目录统计
type Stats struct {
	BasePath   string  `json:"basePath"`
	FileCount  int     `json:"fileCount"`
	TotalBytes int64   `json:"totalBytes"`
	TotalMB    float64 `json:"totalMb"`
}

// Store 上传文件的平铺目录存储
//
// 所有文件直接位于 basePath 下，不建子目录。
type Store struct {
	basePath      string         // 上传根目录
	platformUtils *PlatformUtils // 平台兼容性工具
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	platformUtils := NewPlatformUtils()

	if err := platformUtils.ValidatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	normalizedPath := platformUtils.NormalizePath(basePath)

	// 确保基础目录存在
	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{
		basePath:      normalizedPath,
		platformUtils: platformUtils,
	}, nil
}

// BasePath 返回上传根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// Path 返回存储文件的完整路径
func (s *Store) Path(name string) string {
	return filepath.Join(s.basePath, name)
}

// Save 以独占方式创建文件并写入内容
//
// 参数:
//   - ctx: 取消时中止写入
//   - name: 存储文件名，不能包含路径分隔符
//   - r: 内容来源
//   - limit: 最大字节数，超出返回 ErrExceedsLimit
//
// 返回值:
//   - string: 文件完整路径
//   - int64: 写入字节数
//   - error: 任何失败都会删除已写入的部分文件
func (s *Store) Save(ctx context.Context, name string, r io.Reader, limit int64) (path string, written int64, err error) {
	if !s.platformUtils.IsValidFilename(name) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path = s.Path(name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
			path = ""
		}
	}()

	written, err = copyWithContext(ctx, f, io.LimitReader(r, limit+1))
	if err != nil {
		return path, written, fmt.Errorf("failed to write file: %w", err)
	}
	if written > limit {
		return path, written, ErrExceedsLimit
	}

	return path, written, nil
}

// copyWithContext 分块复制，每块之前检查 ctx
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			if w != n {
				return total, io.ErrShortWrite
			}
		}

		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// Remove 删除存储文件，文件不存在视为成功
func (s *Store) Remove(name string) error {
	if !s.platformUtils.IsValidFilename(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// List 列出上传目录中的普通文件，按名称排序
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// 列举期间被删除
			continue
		}

		entries = append(entries, Entry{
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// CleanupExpired 删除修改时间早于 cutoff 的文件
//
// 单个文件删除失败不会中断遍历，所有失败合并后返回。
//
// 返回值:
//   - int: 实际删除的文件数
//   - error: 目录无法读取或部分文件删除失败
func (s *Store) CleanupExpired(cutoff time.Time) (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}

	count := 0
	var errs error
	for _, e := range entries {
		if !e.ModTime.Before(cutoff) {
			continue
		}

		if err := os.Remove(s.Path(e.Name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("failed to remove %s: %w", e.Name, err))
			continue
		}
		count++
	}

	return count, errs
}

// Health 检查上传目录是否可写
func (s *Store) Health() error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("upload directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upload path is not a directory: %s", s.basePath)
	}

	probe, err := os.CreateTemp(s.basePath, ".health-*")
	if err != nil {
		return fmt.Errorf("upload directory not writable: %w", err)
	}
	name := probe.Name()
	return multierr.Combine(probe.Close(), os.Remove(name))
}

// Stats 获取上传目录统计信息
func (s *Store) Stats() (Stats, error) {
	entries, err := s.List()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{BasePath: s.basePath, FileCount: len(entries)}
	for _, e := range entries {
		stats.TotalBytes += e.Size
	}
	stats.TotalMB = float64(stats.TotalBytes) / 1024 / 1024

	return stats, nil
}
