package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
)

// LogSender 开发环境发送器
//
// 不连接任何邮件服务，只记录日志。配置了 outbox 目录时，
// 把完整邮件写成 .eml 文件，可以直接用邮件客户端打开检查。
type LogSender struct {
	dir    string
	env    Envelope
	logger *zap.Logger
	now    func() time.Time
}

// NewLogSender 创建开发环境发送器
func NewLogSender(dir string, env Envelope, logger *zap.Logger) *LogSender {
	return &LogSender{
		dir:    dir,
		env:    env,
		logger: logger,
		now:    time.Now,
	}
}

// Send 记录邮件摘要，并按需写入 .eml 文件
func (s *LogSender) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("to", s.env.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	}

	if s.dir != "" {
		path, err := s.writeEML(msg)
		if err != nil {
			return err
		}
		fields = append(fields, zap.String("eml", path))
	}

	s.logger.Info("Repair mail captured (not sent)", fields...)
	return nil
}

// writeEML 把完整邮件写入 outbox 目录
func (s *LogSender) writeEML(msg *domain.OutboundMessage) (path string, err error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create outbox: %w", err)
	}

	now := s.now()
	path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.eml", now.Format("2006_01_02_150405"), now.UnixNano()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create eml: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := Compose(f, s.env, msg, now); err != nil {
		return path, fmt.Errorf("write eml: %w", err)
	}
	return path, nil
}
