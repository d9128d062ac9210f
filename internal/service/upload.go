package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/monitoring"
	"repairdesk/backend/internal/security"
	"repairdesk/backend/internal/storage/filesystem"
)

// headerSniffLength 用于检查文件头魔数的字节数
const headerSniffLength = 16

// ErrSessionReleased 会话已释放后继续接收文件
var ErrSessionReleased = errors.New("upload session already released")

// AttachmentStore 上传目录的读写接口
type AttachmentStore interface {
	Save(ctx context.Context, name string, r io.Reader, limit int64) (string, int64, error)
	Remove(name string) error
}

// UploadService 管理报修图片从接收到删除的整个生命周期
type UploadService struct {
	store    AttachmentStore
	checker  *security.AttachmentSecurity
	platform *filesystem.PlatformUtils
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewUploadService 创建上传服务
func NewUploadService(store AttachmentStore, metrics *monitoring.Metrics, logger *zap.Logger) *UploadService {
	return &UploadService{
		store:    store,
		checker:  security.NewAttachmentSecurity(),
		platform: filesystem.NewPlatformUtils(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Open 为一次请求创建上传会话
func (s *UploadService) Open() *UploadSession {
	return &UploadSession{service: s}
}

// Release 删除给定附件对应的文件
//
// 文件不存在不算错误。单个文件删除失败不会中断其余文件的删除，
// 所有失败合并为一个 *domain.StorageError 返回。
func (s *UploadService) Release(attachments []*domain.Attachment) error {
	var errs error
	released, failed := 0, 0

	for _, a := range attachments {
		if err := s.store.Remove(a.StorageName()); err != nil {
			errs = multierr.Append(errs, err)
			failed++
			continue
		}
		released++
	}

	s.metrics.RecordRelease(released, failed)

	if errs != nil {
		return &domain.StorageError{Op: "release", Err: errs}
	}
	return nil
}

// UploadSession 一次请求内接收的附件集合
//
// Release 只会真正执行一次，请求处理函数应当 defer 调用它。
type UploadSession struct {
	service  *UploadService
	mu       sync.Mutex
	accepted []*domain.Attachment
	released bool
}

// Accept 检查并保存一批图片
//
// 任何一张图片不合格时整批拒绝，本批已写入的文件立即删除，
// 之前批次已接收的文件保持不变。
//
// 返回值:
//   - []*domain.Attachment: 本批保存成功的附件
//   - error: *domain.AttachmentError（可由用户修正）或 *domain.StorageError
func (s *UploadSession) Accept(ctx context.Context, files []*multipart.FileHeader) ([]*domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrSessionReleased
	}
	if len(files) == 0 {
		return nil, nil
	}

	svc := s.service
	if len(s.accepted)+len(files) > domain.MaxAttachments {
		svc.metrics.RecordAttachmentRejected("too_many_files")
		return nil, &domain.AttachmentError{Err: domain.ErrTooManyFiles}
	}

	// 先按声明的信息检查整批，全部通过才开始写盘
	for _, fh := range files {
		if err := svc.checker.CheckDeclared(fh.Filename, fh.Header.Get("Content-Type"), fh.Size); err != nil {
			svc.metrics.RecordAttachmentRejected(rejectReason(err))
			return nil, &domain.AttachmentError{Err: err, Filename: fh.Filename}
		}
	}

	batch := make([]*domain.Attachment, 0, len(files))
	for _, fh := range files {
		a, err := svc.save(ctx, fh)
		if err != nil {
			if rerr := svc.Release(batch); rerr != nil {
				svc.logger.Error("Failed to remove partially accepted batch", zap.Error(rerr))
			}

			var attErr *domain.AttachmentError
			if errors.As(err, &attErr) {
				svc.metrics.RecordAttachmentRejected(rejectReason(attErr.Err))
			}
			return nil, err
		}
		batch = append(batch, a)
		svc.metrics.RecordAttachmentAccepted(a.Size)
	}

	s.accepted = append(s.accepted, batch...)
	return batch, nil
}

// Attachments 返回会话中已接收的全部附件
func (s *UploadSession) Attachments() []*domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Attachment(nil), s.accepted...)
}

// Release 删除会话中接收的全部文件，重复调用不做任何事
func (s *UploadSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	attachments := s.accepted
	s.accepted = nil
	return s.service.Release(attachments)
}

// save 保存单个文件
func (s *UploadService) save(ctx context.Context, fh *multipart.FileHeader) (*domain.Attachment, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, &domain.StorageError{Op: "open upload", Err: err}
	}
	defer src.Close()

	header := make([]byte, headerSniffLength)
	n, err := io.ReadFull(src, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &domain.StorageError{Op: "read upload", Err: err}
	}
	header = header[:n]

	if err := s.checker.CheckHeader(header); err != nil {
		return nil, &domain.AttachmentError{Err: err, Filename: fh.Filename}
	}

	now := s.now()
	a := &domain.Attachment{
		Key:          fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()),
		Ext:          s.platform.SafeExtension(fh.Filename),
		OriginalName: fh.Filename,
		ContentType:  mediaType(fh.Header.Get("Content-Type")),
		CreatedAt:    now,
	}

	path, written, err := s.store.Save(ctx, a.StorageName(), io.MultiReader(bytes.NewReader(header), src), s.checker.MaxFileSize())
	if err != nil {
		if errors.Is(err, filesystem.ErrExceedsLimit) {
			return nil, &domain.AttachmentError{Err: domain.ErrFileTooLarge, Filename: fh.Filename}
		}
		return nil, &domain.StorageError{Op: "save upload", Err: err}
	}

	a.StoragePath = path
	a.Size = written
	return a, nil
}

// mediaType 去掉 MIME 参数，只保留类型本身
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// rejectReason 附件拒绝原因的指标标签
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTooManyFiles):
		return "too_many_files"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, domain.ErrInvalidFileType):
		return "invalid_file_type"
	default:
		return "other"
	}
}
