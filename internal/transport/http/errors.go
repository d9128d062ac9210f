package httptransport

import (
	"errors"
	"net/http"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/middleware"
)

// 错误消息映射表（附件错误 -> 中文消息）
var errorMessages = map[error]string{
	domain.ErrTooManyFiles:    domain.MsgTooManyPhotos,
	domain.ErrFileTooLarge:    domain.MsgFileTooLarge,
	domain.ErrInvalidFileType: domain.MsgInvalidFileType,
}

// GetErrorMessage 获取附件错误的中文消息，未知错误返回通用提示
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return MsgInternalError
}

// 通用错误消息
const (
	MsgSubmitSuccess    = "报修信息提交成功"
	MsgValidationFailed = "表单验证失败"
	MsgInvalidRequest   = "请求格式错误"
	MsgNotFound         = "接口不存在"

	// 服务器错误，不透出内部细节
	MsgInternalError = middleware.MsgInternalError
)

// errorResponse 把报修提交错误映射为 HTTP 状态码和响应体
//
// 校验与附件错误用户可修正，返回 400 和具体提示；其余一律 500 通用提示。
func errorResponse(err error) (int, Response) {
	var (
		validationErr *domain.ValidationError
		attachmentErr *domain.AttachmentError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, Response{
			Message: MsgValidationFailed,
			Errors:  validationErr.Result.Messages(),
			Field:   validationErr.Result.FirstInvalidField(),
		}
	case errors.As(err, &attachmentErr):
		msg := GetErrorMessage(attachmentErr.Err)
		return http.StatusBadRequest, Response{
			Message: msg,
			Errors:  []string{msg},
			Field:   domain.FieldPhotos,
		}
	default:
		return http.StatusInternalServerError, Response{
			Message: MsgInternalError,
		}
	}
}
