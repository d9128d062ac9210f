package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// 面向用户的校验提示（与浏览器端共用同一份文案）
const (
	MsgSchoolLength        = "学校名称必须在1-50个字符之间"
	MsgCampusLength        = "校区信息必须在1-20个字符之间"
	MsgBuildingLength      = "楼栋信息必须在1-20个字符之间"
	MsgRoomLength          = "房间号必须在1-10个字符之间"
	MsgDescriptionLength   = "故障描述必须在1-500个字符之间"
	MsgPhoneInvalid        = "请输入有效的手机号码"
	MsgAppointmentRequired = "预约时间不能为空"
	MsgAppointmentInvalid  = "请输入有效的预约时间"
	MsgAppointmentPast     = "预约时间不能早于当前时间"
	MsgTooManyPhotos       = "最多只能上传5张图片"
	MsgFileTooLarge        = "图片大小不能超过5MB"
	MsgInvalidFileType     = "只允许上传图片文件"
)

// PhonePattern 大陆手机号：11 位，以 1 开头，第二位为 3-9
const PhonePattern = `^1[3-9]\d{9}$`

var phoneRegex = regexp.MustCompile(PhonePattern)

// appointmentLayouts 可接受的预约时间格式，依次尝试
var appointmentLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04", // <input type="datetime-local">
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// FieldRule 描述单个字段的约束，服务端校验与浏览器端提示共用
type FieldRule struct {
	Field     string `json:"field"`
	Required  bool   `json:"required"`
	MinLength int    `json:"minLength,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Message   string `json:"message"`
}

// RuleSet 报修表单的完整约束集合
type RuleSet struct {
	Fields          []FieldRule `json:"fields"`
	MaxPhotos       int         `json:"maxPhotos"`
	MaxPhotoSize    int64       `json:"maxPhotoSize"`
	PhotoTypePrefix string      `json:"photoTypePrefix"`
	PhotoMessages   []string    `json:"photoMessages"`
}

// lengthRule 文本长度规则
type lengthRule struct {
	FieldRule
	value func(f *RepairForm) string
}

var lengthRules = []lengthRule{
	{FieldRule{Field: FieldSchool, Required: true, MinLength: 1, MaxLength: 50, Message: MsgSchoolLength},
		func(f *RepairForm) string { return f.School }},
	{FieldRule{Field: FieldCampus, MinLength: 1, MaxLength: 20, Message: MsgCampusLength},
		func(f *RepairForm) string { return f.Campus }},
	{FieldRule{Field: FieldBuilding, Required: true, MinLength: 1, MaxLength: 20, Message: MsgBuildingLength},
		func(f *RepairForm) string { return f.Building }},
	{FieldRule{Field: FieldRoom, Required: true, MinLength: 1, MaxLength: 10, Message: MsgRoomLength},
		func(f *RepairForm) string { return f.Room }},
	{FieldRule{Field: FieldDescription, Required: true, MinLength: 1, MaxLength: 500, Message: MsgDescriptionLength},
		func(f *RepairForm) string { return f.Description }},
}

// Rules 返回报修表单的约束集合，供 /api/repair/rules 输出给浏览器
func Rules() RuleSet {
	fields := make([]FieldRule, 0, len(lengthRules)+2)
	for _, r := range lengthRules {
		fields = append(fields, r.FieldRule)
	}
	fields = append(fields,
		FieldRule{Field: FieldPhone, Pattern: PhonePattern, Message: MsgPhoneInvalid},
		FieldRule{Field: FieldAppointmentTime, Required: true, Message: MsgAppointmentRequired},
	)

	return RuleSet{
		Fields:          fields,
		MaxPhotos:       MaxAttachments,
		MaxPhotoSize:    MaxAttachmentSize,
		PhotoTypePrefix: AttachmentTypePrefix,
		PhotoMessages:   []string{MsgTooManyPhotos, MsgFileTooLarge, MsgInvalidFileType},
	}
}

// Violation 一条失败的校验规则
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult 有序的违规列表，可能为空
type ValidationResult struct {
	Violations []Violation `json:"violations"`
}

// Valid 没有任何违规时返回 true
func (r ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Messages 按规则顺序返回提示文案
func (r ValidationResult) Messages() []string {
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.Message)
	}
	return msgs
}

// FirstInvalidField 返回第一个出错字段，浏览器据此滚动定位
func (r ValidationResult) FirstInvalidField() string {
	if len(r.Violations) == 0 {
		return ""
	}
	return r.Violations[0].Field
}

func (r *ValidationResult) add(field, message string) {
	r.Violations = append(r.Violations, Violation{Field: field, Message: message})
}

// RepairValidator 报修表单校验器
//
// 校验是纯函数：结果只取决于表单内容与时钟。
// 所有规则独立执行，一次提交可以同时返回多条违规。
type RepairValidator struct {
	now      func() time.Time
	location *time.Location
}

// ValidatorOption 校验器配置项
type ValidatorOption func(*RepairValidator)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *RepairValidator) {
		v.now = now
	}
}

// WithLocation 设置不带时区的预约时间按哪个时区解析
func WithLocation(loc *time.Location) ValidatorOption {
	return func(v *RepairValidator) {
		if loc != nil {
			v.location = loc
		}
	}
}

// NewRepairValidator 创建报修表单校验器
func NewRepairValidator(opts ...ValidatorOption) *RepairValidator {
	v := &RepairValidator{
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Location 返回预约时间使用的时区
func (v *RepairValidator) Location() *time.Location {
	return v.location
}

// Validate 校验报修表单
func (v *RepairValidator) Validate(form RepairForm) ValidationResult {
	form = NormalizeForm(form)
	var result ValidationResult

	for _, rule := range lengthRules {
		value := rule.value(&form)
		if value == "" && !rule.Required {
			continue
		}
		n := utf8.RuneCountInString(value)
		if n < rule.MinLength || n > rule.MaxLength {
			result.add(rule.Field, rule.Message)
		}
	}

	if form.Phone != "" && !phoneRegex.MatchString(form.Phone) {
		result.add(FieldPhone, MsgPhoneInvalid)
	}

	if form.AppointmentTime == "" {
		result.add(FieldAppointmentTime, MsgAppointmentRequired)
	} else if at, err := v.ParseAppointment(form.AppointmentTime); err != nil {
		result.add(FieldAppointmentTime, MsgAppointmentInvalid)
	} else if at.Before(v.now()) {
		result.add(FieldAppointmentTime, MsgAppointmentPast)
	}

	if form.AttachmentCount > MaxAttachments {
		result.add(FieldPhotos, MsgTooManyPhotos)
	}

	return result
}

// Check 校验表单并在通过时构造 RepairRequest，失败时返回 *ValidationError
func (v *RepairValidator) Check(form RepairForm) (*RepairRequest, error) {
	result := v.Validate(form)
	if !result.Valid() {
		return nil, &ValidationError{Result: result}
	}

	form = NormalizeForm(form)
	at, err := v.ParseAppointment(form.AppointmentTime)
	if err != nil {
		return nil, fmt.Errorf("parse appointment time: %w", err)
	}

	return &RepairRequest{
		School:          form.School,
		Campus:          form.Campus,
		Building:        form.Building,
		Room:            form.Room,
		Description:     form.Description,
		Phone:           form.Phone,
		AppointmentTime: at,
	}, nil
}

// ParseAppointment 按支持的格式解析预约时间，无时区的值按校验器时区解释
func (v *RepairValidator) ParseAppointment(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range appointmentLayouts {
		if t, err := time.ParseInLocation(layout, value, v.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", value)
}

// NormalizeForm 去除首尾空白并做 NFC 规范化，与浏览器端 trim() 后计数保持一致
func NormalizeForm(form RepairForm) RepairForm {
	clean := func(s string) string {
		return norm.NFC.String(strings.TrimSpace(s))
	}
	form.School = clean(form.School)
	form.Campus = clean(form.Campus)
	form.Building = clean(form.Building)
	form.Room = clean(form.Room)
	form.Description = clean(form.Description)
	form.Phone = clean(form.Phone)
	form.AppointmentTime = strings.TrimSpace(form.AppointmentTime)
	return form
}
