package service

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/security"
)

// 邮件文案
const (
	RepairSubject        = "新的报修申请"
	appointmentLayout    = "2006-01-02 15:04"
	phonePlaceholder     = "未提供"
	campusPlaceholder    = "未填写"
	attachmentNamePrefix = "photo-"
)

// htmlTemplate 各字段在填入前已经转义，这里只做拼接
var htmlTemplate = template.Must(template.New("repair-html").Parse(
	`<h2>报修信息</h2>
{{range .}}<p><strong>{{.Label}}：</strong>{{.Value}}</p>
{{end}}`))

var textTemplate = template.Must(template.New("repair-text").Parse(
	`报修信息
{{range .}}{{.Label}}：{{.Value}}
{{end}}`))

// field 邮件正文中的一行
type field struct {
	Label string
	Value string
}

// Assembler 把校验通过的报修请求组装成邮件
type Assembler struct {
	location *time.Location
}

// NewAssembler 创建邮件组装器，预约时间按 loc 时区显示
func NewAssembler(loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	return &Assembler{location: loc}
}

// Assemble 生成报修邮件
//
// 只读取 attachments，不做修改。附件按顺序命名为 photo-1、photo-2 …，
// 与存储键无关。
func (a *Assembler) Assemble(req *domain.RepairRequest, attachments []*domain.Attachment) (*domain.OutboundMessage, error) {
	fields := a.fields(req)

	escaped := make([]field, len(fields))
	for i, f := range fields {
		escaped[i] = field{Label: f.Label, Value: security.EscapeHTML(f.Value)}
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, escaped); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, fields); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	msgAttachments := make([]domain.MessageAttachment, 0, len(attachments))
	for i, att := range attachments {
		msgAttachments = append(msgAttachments, domain.MessageAttachment{
			Filename:    fmt.Sprintf("%s%d%s", attachmentNamePrefix, i+1, att.Ext),
			ContentType: att.ContentType,
			Path:        att.StoragePath,
			Size:        att.Size,
		})
	}

	return &domain.OutboundMessage{
		Subject:     RepairSubject,
		HTMLBody:    html.String(),
		TextBody:    text.String(),
		Attachments: msgAttachments,
	}, nil
}

// fields 按固定顺序列出正文字段（未转义）
func (a *Assembler) fields(req *domain.RepairRequest) []field {
	campus := req.Campus
	if campus == "" {
		campus = campusPlaceholder
	}
	phone := req.Phone
	if phone == "" {
		phone = phonePlaceholder
	}

	return []field{
		{"学校", req.School},
		{"校区", campus},
		{"楼栋", req.Building},
		{"房间号", req.Room},
		{"故障描述", req.Description},
		{"联系电话", phone},
		{"预约时间", req.AppointmentTime.In(a.location).Format(appointmentLayout)},
	}
}
