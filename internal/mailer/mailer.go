package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"repairdesk/backend/internal/config"
	"repairdesk/backend/internal/domain"
)

var (
	// ErrInvalidConfig 发送器配置不完整
	ErrInvalidConfig = errors.New("invalid mail config")

	// ErrAttachmentChanged 附件在发送前被修改或删除
	ErrAttachmentChanged = errors.New("attachment changed before dispatch")
)

// Sender 把报修邮件交给外部邮件服务
//
// Send 返回后附件文件可能立即被删除，实现必须在返回前读完所有附件。
type Sender interface {
	Send(ctx context.Context, msg *domain.OutboundMessage) error
}

// Envelope 发件人与收件人
type Envelope struct {
	From string
	To   string
}

// New 根据配置创建发送器
//
// 参数:
//   - cfg: 邮件配置，driver 决定使用哪种发送方式
//   - logger: 日志记录器
//
// 返回值:
//   - Sender: 发送器
//   - error: driver 未知或必需参数缺失
func New(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	env := Envelope{From: cfg.From, To: cfg.To}
	log := logger.Named("mailer").With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.MailDriverSMTP:
		return NewSMTPSender(cfg.SMTP, env, log), nil
	case config.MailDriverResend:
		return NewResendSender(cfg.Resend.APIKey, env, log)
	case config.MailDriverPostmark:
		return NewPostmarkSender(cfg.Postmark, env, log)
	case config.MailDriverLog:
		return NewLogSender(cfg.OutboxDir, env, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

// openAttachment 打开附件并确认大小与接收时一致
func openAttachment(a domain.MessageAttachment) (*os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open attachment %s: %w", a.Filename, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat attachment %s: %w", a.Filename, err)
	}
	if info.Size() != a.Size {
		f.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, expected %d", ErrAttachmentChanged, a.Filename, info.Size(), a.Size)
	}

	return f, nil
}

// readAttachment 读取附件全部内容，供 HTTP API 类发送器使用
func readAttachment(a domain.MessageAttachment) ([]byte, error) {
	f, err := openAttachment(a)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", a.Filename, err)
	}
	return data, nil
}
