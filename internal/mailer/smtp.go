package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"repairdesk/backend/internal/config"
	"repairdesk/backend/internal/domain"
)

// SMTPSender 通过 SMTP 服务器投递报修邮件
type SMTPSender struct {
	cfg    config.SMTPConfig
	env    Envelope
	logger *zap.Logger
	now    func() time.Time
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg config.SMTPConfig, env Envelope, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		env:    env,
		logger: logger,
		now:    time.Now,
	}
}

// Send 建立连接、认证并提交邮件
//
// 每次发送使用独立连接，失败不重试。
func (s *SMTPSender) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	c, stop, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if s.cfg.Timeout > 0 {
		c.CommandTimeout = s.cfg.Timeout
		c.SubmissionTimeout = s.cfg.Timeout
	}

	if s.cfg.Password != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Compose(pw, s.env, msg, s.now()))
	}()
	defer pr.Close()

	if err := c.SendMail(s.env.From, []string{s.env.To}, pr); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("SMTP quit failed after successful submission", zap.Error(err))
	}

	s.logger.Info("Repair mail submitted",
		zap.String("server", s.cfg.Addr()),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

// dial 按配置的加密方式建立连接，ctx 取消时关闭连接
func (s *SMTPSender) dial(ctx context.Context) (*gosmtp.Client, func() bool, error) {
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return nil, nil, fmt.Errorf("smtp dial %s: %w", s.cfg.Addr(), err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })

	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}

	var c *gosmtp.Client
	switch s.cfg.TLSMode {
	case config.TLSModeImplicit:
		c = gosmtp.NewClient(tls.Client(conn, tlsConfig))
	case config.TLSModeStartTLS:
		c, err = gosmtp.NewClientStartTLS(conn, tlsConfig)
	case config.TLSModeNone:
		c = gosmtp.NewClient(conn)
	default:
		err = fmt.Errorf("%w: unknown tls mode %q", ErrInvalidConfig, s.cfg.TLSMode)
	}
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, fmt.Errorf("smtp connect: %w", err)
	}

	return c, stop, nil
}
