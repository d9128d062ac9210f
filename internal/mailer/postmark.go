package mailer

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"

	"repairdesk/backend/internal/config"
	"repairdesk/backend/internal/domain"
)

// postmarkStream 事务邮件使用的消息流
const postmarkStream = "outbound"

// PostmarkSender 通过 Postmark API 投递报修邮件
type PostmarkSender struct {
	client *postmark.Client
	env    Envelope
	logger *zap.Logger
}

// NewPostmarkSender 创建 Postmark 发送器
func NewPostmarkSender(cfg config.PostmarkConfig, env Envelope, logger *zap.Logger) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}

	return &PostmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		env:    env,
		logger: logger,
	}, nil
}

// Send 读取附件并调用 Postmark 发送接口
func (s *PostmarkSender) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	attachments := make([]postmark.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		content, err := readAttachment(a)
		if err != nil {
			return err
		}
		attachments = append(attachments, postmark.Attachment{
			Name:        a.Filename,
			Content:     base64.StdEncoding.EncodeToString(content),
			ContentType: a.ContentType,
		})
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:          s.env.From,
		To:            s.env.To,
		Subject:       msg.Subject,
		HTMLBody:      msg.HTMLBody,
		TextBody:      msg.TextBody,
		Attachments:   attachments,
		MessageStream: postmarkStream,
	})
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}

	s.logger.Info("Repair mail submitted",
		zap.String("postmark_id", resp.MessageID),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}
