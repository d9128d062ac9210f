package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newTestValidator() *RepairValidator {
	return NewRepairValidator(
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
}

func validForm() RepairForm {
	return RepairForm{
		School:          "第一中学",
		Campus:          "东校区",
		Building:        "3号楼",
		Room:            "301",
		Description:     "教室灯管不亮",
		Phone:           "13812345678",
		AppointmentTime: "2026-10-20T10:00",
	}
}

func TestValidateValidForm(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(validForm())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Messages())
	assert.Equal(t, "", result.FirstInvalidField())
}

func TestValidateLengthBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *RepairForm)
		message string
	}{
		{"学校 50 字符通过", func(f *RepairForm) { f.School = strings.Repeat("校", 50) }, ""},
		{"学校 51 字符失败", func(f *RepairForm) { f.School = strings.Repeat("校", 51) }, MsgSchoolLength},
		{"学校为空失败", func(f *RepairForm) { f.School = "" }, MsgSchoolLength},
		{"学校仅空白失败", func(f *RepairForm) { f.School = "   " }, MsgSchoolLength},
		{"校区为空通过", func(f *RepairForm) { f.Campus = "" }, ""},
		{"校区 20 字符通过", func(f *RepairForm) { f.Campus = strings.Repeat("a", 20) }, ""},
		{"校区 21 字符失败", func(f *RepairForm) { f.Campus = strings.Repeat("a", 21) }, MsgCampusLength},
		{"楼栋 20 字符通过", func(f *RepairForm) { f.Building = strings.Repeat("b", 20) }, ""},
		{"楼栋 21 字符失败", func(f *RepairForm) { f.Building = strings.Repeat("b", 21) }, MsgBuildingLength},
		{"房间号 10 字符通过", func(f *RepairForm) { f.Room = strings.Repeat("1", 10) }, ""},
		{"房间号 11 字符失败", func(f *RepairForm) { f.Room = strings.Repeat("1", 11) }, MsgRoomLength},
		{"房间号为空失败", func(f *RepairForm) { f.Room = "" }, MsgRoomLength},
		{"描述 500 字符通过", func(f *RepairForm) { f.Description = strings.Repeat("坏", 500) }, ""},
		{"描述 501 字符失败", func(f *RepairForm) { f.Description = strings.Repeat("坏", 501) }, MsgDescriptionLength},
		{"首尾空白不计入长度", func(f *RepairForm) { f.Room = "  " + strings.Repeat("1", 10) + "  " }, ""},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.mutate(&form)

			result := v.Validate(form)
			if tt.message == "" {
				assert.True(t, result.Valid(), "unexpected violations: %v", result.Messages())
				return
			}
			assert.Equal(t, []string{tt.message}, result.Messages())
		})
	}
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{"空号码可选", "", true},
		{"有效号码", "13812345678", true},
		{"有效号码 19 段", "19912345678", true},
		{"第二位为 2", "12345678901", false},
		{"10 位", "1381234567", false},
		{"12 位", "138123456789", false},
		{"不以 1 开头", "23812345678", false},
		{"含字母", "1381234567a", false},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			form.Phone = tt.phone

			result := v.Validate(form)
			if tt.valid {
				assert.True(t, result.Valid())
			} else {
				assert.Equal(t, []string{MsgPhoneInvalid}, result.Messages())
				assert.Equal(t, FieldPhone, result.FirstInvalidField())
			}
		})
	}
}

func TestValidateAppointmentTime(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		message string
	}{
		{"为空", "", MsgAppointmentRequired},
		{"无法解析", "明天上午", MsgAppointmentInvalid},
		{"等于当前时间", fixedNow.Format(time.RFC3339), ""},
		{"早于当前时间 1 秒", fixedNow.Add(-time.Second).Format(time.RFC3339), MsgAppointmentPast},
		{"晚于当前时间", "2026-10-19T09:31", ""},
		{"datetime-local 早于当前", "2026-10-19T09:29", MsgAppointmentPast},
		{"带空格格式", "2026-10-21 08:00", ""},
		{"带时区偏移", "2026-10-19T17:30:00+08:00", ""},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			form.AppointmentTime = tt.value

			result := v.Validate(form)
			if tt.message == "" {
				assert.True(t, result.Valid(), "unexpected violations: %v", result.Messages())
				return
			}
			assert.Equal(t, []string{tt.message}, result.Messages())
		})
	}
}

func TestValidateAttachmentCount(t *testing.T) {
	v := newTestValidator()

	form := validForm()
	form.AttachmentCount = MaxAttachments
	assert.True(t, v.Validate(form).Valid())

	form.AttachmentCount = MaxAttachments + 1
	result := v.Validate(form)
	assert.Equal(t, []string{MsgTooManyPhotos}, result.Messages())
	assert.Equal(t, FieldPhotos, result.FirstInvalidField())
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(RepairForm{
		Campus:          strings.Repeat("c", 21),
		Phone:           "123",
		AppointmentTime: "2020-01-01T00:00",
		AttachmentCount: 6,
	})

	assert.False(t, result.Valid())
	assert.Equal(t, []string{
		MsgSchoolLength,
		MsgCampusLength,
		MsgBuildingLength,
		MsgRoomLength,
		MsgDescriptionLength,
		MsgPhoneInvalid,
		MsgAppointmentPast,
		MsgTooManyPhotos,
	}, result.Messages())
	assert.Equal(t, FieldSchool, result.FirstInvalidField())
}

func TestValidateIsDeterministic(t *testing.T) {
	v := newTestValidator()
	form := validForm()
	form.Room = ""

	first := v.Validate(form)
	second := v.Validate(form)
	assert.Equal(t, first, second)
}

func TestCheck(t *testing.T) {
	v := newTestValidator()

	t.Run("valid form builds request", func(t *testing.T) {
		form := validForm()
		form.School = "  第一中学 "

		req, err := v.Check(form)
		require.NoError(t, err)
		assert.Equal(t, "第一中学", req.School)
		assert.Equal(t, time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC), req.AppointmentTime)
	})

	t.Run("invalid form returns ValidationError", func(t *testing.T) {
		form := validForm()
		form.Building = ""

		req, err := v.Check(form)
		assert.Nil(t, req)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{MsgBuildingLength}, verr.Result.Messages())
	})
}

func TestRules(t *testing.T) {
	rules := Rules()

	assert.Equal(t, MaxAttachments, rules.MaxPhotos)
	assert.Equal(t, int64(MaxAttachmentSize), rules.MaxPhotoSize)
	assert.Equal(t, "image/", rules.PhotoTypePrefix)

	byField := make(map[string]FieldRule)
	for _, r := range rules.Fields {
		byField[r.Field] = r
	}
	assert.Equal(t, 50, byField[FieldSchool].MaxLength)
	assert.False(t, byField[FieldCampus].Required)
	assert.Equal(t, PhonePattern, byField[FieldPhone].Pattern)
	assert.True(t, byField[FieldAppointmentTime].Required)
}
