package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
)

// ResendSender 通过 Resend API 投递报修邮件
type ResendSender struct {
	client *resend.Client
	env    Envelope
	logger *zap.Logger
}

// NewResendSender 创建 Resend 发送器
func NewResendSender(apiKey string, env Envelope, logger *zap.Logger) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: resend api key is required", ErrInvalidConfig)
	}

	return &ResendSender{
		client: resend.NewClient(apiKey),
		env:    env,
		logger: logger,
	}, nil
}

// Send 读取附件并调用 Resend 发送接口
func (s *ResendSender) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	attachments := make([]*resend.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		content, err := readAttachment(a)
		if err != nil {
			return err
		}
		attachments = append(attachments, &resend.Attachment{
			Content:     content,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}

	params := &resend.SendEmailRequest{
		From:        s.env.From,
		To:          []string{s.env.To},
		Subject:     msg.Subject,
		Html:        msg.HTMLBody,
		Text:        msg.TextBody,
		Attachments: attachments,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}

	s.logger.Info("Repair mail submitted",
		zap.String("resend_id", sent.Id),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}
