package mailer

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"repairdesk/backend/internal/domain"
)

// base64LineLength RFC 2045 规定的单行最大长度
const base64LineLength = 76

// Compose 生成 RFC 5322 格式的邮件，附件直接从磁盘流式编码
//
// 结构:
//
//	multipart/mixed
//	├── multipart/alternative
//	│   ├── text/plain
//	│   └── text/html
//	└── 图片附件（base64）
func Compose(w io.Writer, env Envelope, msg *domain.OutboundMessage, date time.Time) error {
	mixed := multipart.NewWriter(w)

	header := []string{
		"From: " + formatAddress(env.From),
		"To: " + formatAddress(env.To),
		"Subject: " + mime.BEncoding.Encode("UTF-8", msg.Subject),
		"Date: " + date.Format(time.RFC1123Z),
		"Message-ID: " + messageID(env.From),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + mixed.Boundary(),
	}
	if _, err := io.WriteString(w, strings.Join(header, "\r\n")+"\r\n\r\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeAlternative(mixed, msg); err != nil {
		return err
	}

	for _, a := range msg.Attachments {
		if err := writeAttachment(mixed, a); err != nil {
			return err
		}
	}

	return mixed.Close()
}

// writeAlternative 写入纯文本与 HTML 两个正文版本
func writeAlternative(mixed *multipart.Writer, msg *domain.OutboundMessage) error {
	altBoundary := "alt-" + uuid.NewString()
	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + altBoundary},
	})
	if err != nil {
		return fmt.Errorf("create alternative part: %w", err)
	}

	alt := multipart.NewWriter(part)
	if err := alt.SetBoundary(altBoundary); err != nil {
		return fmt.Errorf("set boundary: %w", err)
	}

	bodies := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.TextBody},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	}
	for _, b := range bodies {
		p, err := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {b.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return fmt.Errorf("create body part: %w", err)
		}

		qp := quotedprintable.NewWriter(p)
		if _, err := io.WriteString(qp, b.content); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		if err := qp.Close(); err != nil {
			return fmt.Errorf("flush body: %w", err)
		}
	}

	return alt.Close()
}

// writeAttachment 写入一个 base64 编码的附件
func writeAttachment(mixed *multipart.Writer, a domain.MessageAttachment) error {
	f, err := openAttachment(a)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType, _, err := mime.ParseMediaType(a.ContentType)
	if err != nil {
		contentType = "application/octet-stream"
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": a.Filename})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}

	lw := &lineWrapper{w: part}
	enc := base64.NewEncoder(base64.StdEncoding, lw)
	if _, err := io.Copy(enc, f); err != nil {
		return fmt.Errorf("encode attachment %s: %w", a.Filename, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode attachment %s: %w", a.Filename, err)
	}
	_, err = io.WriteString(part, "\r\n")
	return err
}

// lineWrapper 每 76 个字符插入 CRLF
type lineWrapper struct {
	w   io.Writer
	col int
}

func (l *lineWrapper) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := base64LineLength - l.col
		if n > len(p) {
			n = len(p)
		}
		if _, err := l.w.Write(p[:n]); err != nil {
			return written, err
		}
		written += n
		l.col += n
		p = p[n:]

		if l.col == base64LineLength {
			if _, err := io.WriteString(l.w, "\r\n"); err != nil {
				return written, err
			}
			l.col = 0
		}
	}
	return written, nil
}

// formatAddress 格式化邮件头中的地址
func formatAddress(addr string) string {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return addr
	}
	return parsed.String()
}

// messageID 生成 Message-ID，域名取自发件人地址
func messageID(from string) string {
	host := "localhost"
	if parsed, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(parsed.Address, "@"); at >= 0 && at < len(parsed.Address)-1 {
			host = parsed.Address[at+1:]
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}
