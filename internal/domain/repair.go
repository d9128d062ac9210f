package domain

import "time"

// 表单字段标识，与浏览器端表单控件 id 保持一致
const (
	FieldSchool          = "school"
	FieldCampus          = "campus"
	FieldBuilding        = "building"
	FieldRoom            = "room"
	FieldDescription     = "description"
	FieldPhone           = "phone"
	FieldAppointmentTime = "appointmentTime"
	FieldPhotos          = "photos"
)

// RepairForm 浏览器提交的原始报修字段（尚未校验）
type RepairForm struct {
	School          string `form:"school" json:"school"`
	Campus          string `form:"campus" json:"campus"`
	Building        string `form:"building" json:"building"`
	Room            string `form:"room" json:"room"`
	Description     string `form:"description" json:"description"`
	Phone           string `form:"phone" json:"phone"`
	AppointmentTime string `form:"appointmentTime" json:"appointmentTime"`

	// AttachmentCount 由传输层填入，表示本次提交携带的图片数量
	AttachmentCount int `form:"-" json:"-"`
}

// RepairRequest 通过服务端校验后的报修请求，仅在一次请求处理内存在。
type RepairRequest struct {
	School          string
	Campus          string
	Building        string
	Room            string
	Description     string
	Phone           string
	AppointmentTime time.Time
}
