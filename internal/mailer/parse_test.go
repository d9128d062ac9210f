package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// parsedMessage 测试中读回的邮件内容
type parsedMessage struct {
	Subject     string
	From        string
	To          string
	Text        string
	HTML        string
	Attachments []parsedAttachment
}

type parsedAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// parseMessage 读回 Compose 生成的 UTF-8 邮件
func parseMessage(raw []byte) (*parsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	var dec mime.WordDecoder
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		return nil, fmt.Errorf("decode subject: %w", err)
	}

	parsed := &parsedMessage{
		Subject: subject,
		From:    msg.Header.Get("From"),
		To:      msg.Header.Get("To"),
	}

	_, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}
	if err := parseParts(multipart.NewReader(msg.Body, params["boundary"]), parsed); err != nil {
		return nil, fmt.Errorf("parse multipart: %w", err)
	}
	return parsed, nil
}

func parseParts(mr *multipart.Reader, parsed *parsedMessage) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			return err
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if err := parseParts(multipart.NewReader(part, params["boundary"]), parsed); err != nil {
				return err
			}
			continue
		}

		var r io.Reader = part
		switch strings.ToLower(part.Header.Get("Content-Transfer-Encoding")) {
		case "base64":
			r = base64.NewDecoder(base64.StdEncoding, part)
		case "quoted-printable":
			r = quotedprintable.NewReader(part)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		if _, disp, err := mime.ParseMediaType(part.Header.Get("Content-Disposition")); err == nil && disp["filename"] != "" {
			parsed.Attachments = append(parsed.Attachments, parsedAttachment{
				Filename:    disp["filename"],
				ContentType: mediaType,
				Content:     content,
			})
			continue
		}

		switch mediaType {
		case "text/html":
			parsed.HTML = string(content)
		case "text/plain":
			parsed.Text = string(content)
		}
	}
}
