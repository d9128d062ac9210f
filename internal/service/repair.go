package service

import (
	"context"
	"errors"
	"mime/multipart"
	"time"

	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/mailer"
	"repairdesk/backend/internal/monitoring"
)

// SubmitInput 一次报修提交的原始输入
type SubmitInput struct {
	Form      domain.RepairForm
	Files     []*multipart.FileHeader
	RequestID string
}

// RepairService 处理报修提交：接收图片、校验、组装邮件并发送
type RepairService struct {
	uploads   *UploadService
	validator *domain.RepairValidator
	assembler *Assembler
	sender    mailer.Sender
	driver    string
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// NewRepairService 创建报修服务
//
// 参数:
//   - driver: 邮件发送方式名称，仅用于日志与指标
func NewRepairService(
	uploads *UploadService,
	validator *domain.RepairValidator,
	assembler *Assembler,
	sender mailer.Sender,
	driver string,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *RepairService {
	return &RepairService{
		uploads:   uploads,
		validator: validator,
		assembler: assembler,
		sender:    sender,
		driver:    driver,
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit 处理一次报修提交
//
// 无论成功还是失败，返回前都会删除本次接收的全部图片。发送失败不重试。
//
// 返回值:
//   - *domain.AttachmentError: 图片数量、大小或类型不合格
//   - *domain.ValidationError: 表单字段不合格
//   - *domain.DispatchError: 邮件服务拒绝或不可达
//   - *domain.StorageError: 上传目录读写失败
func (s *RepairService) Submit(ctx context.Context, in SubmitInput) (err error) {
	log := s.logger.With(zap.String("request_id", in.RequestID))

	session := s.uploads.Open()
	defer func() {
		if rerr := session.Release(); rerr != nil {
			log.Error("Failed to release uploaded images", zap.Error(rerr))
		}
		s.metrics.RecordSubmission(outcome(err))
	}()

	attachments, err := session.Accept(ctx, in.Files)
	if err != nil {
		return err
	}

	form := in.Form
	form.AttachmentCount = len(attachments)
	req, err := s.validator.Check(form)
	if err != nil {
		return err
	}

	msg, err := s.assembler.Assemble(req, attachments)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.sender.Send(ctx, msg)
	s.metrics.RecordDispatch(s.driver, err, time.Since(start))
	if err != nil {
		log.Error("Failed to dispatch repair mail",
			zap.String("driver", s.driver),
			zap.Int("attachments", len(attachments)),
			zap.Error(err),
		)
		return &domain.DispatchError{Err: err}
	}

	log.Info("Repair request dispatched",
		zap.String("school", req.School),
		zap.String("building", req.Building),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}

// outcome 把错误归类为指标标签
func outcome(err error) string {
	var (
		validationErr *domain.ValidationError
		attachmentErr *domain.AttachmentError
		dispatchErr   *domain.DispatchError
	)
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.As(err, &validationErr):
		return monitoring.OutcomeInvalid
	case errors.As(err, &attachmentErr):
		return monitoring.OutcomeRejected
	case errors.As(err, &dispatchErr):
		return monitoring.OutcomeDispatchError
	default:
		return monitoring.OutcomeStorageError
	}
}
