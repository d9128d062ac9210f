package httptransport

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/middleware"
	"repairdesk/backend/internal/service"
)

// multipartMemory 解析 multipart 时保留在内存中的上限，超出部分写入临时文件
const multipartMemory = 8 << 20

// RepairSubmitter 报修提交服务
type RepairSubmitter interface {
	Submit(ctx context.Context, in service.SubmitInput) error
}

// RepairHandler 报修接口处理器
type RepairHandler struct {
	repairs RepairSubmitter
	logger  *zap.Logger
}

// NewRepairHandler 创建报修接口处理器
func NewRepairHandler(repairs RepairSubmitter, logger *zap.Logger) *RepairHandler {
	return &RepairHandler{
		repairs: repairs,
		logger:  logger,
	}
}

// SubmitRepair godoc
// @Summary 提交报修申请
// @Description 接收报修表单与最多 5 张图片，校验通过后以邮件形式转发给维修人员
// @Tags Repair
// @Accept multipart/form-data
// @Produce json
// @Param school formData string true "学校"
// @Param campus formData string false "校区"
// @Param building formData string true "楼栋"
// @Param room formData string true "房间号"
// @Param description formData string true "故障描述"
// @Param phone formData string false "联系电话"
// @Param appointmentTime formData string true "预约时间"
// @Param photos formData file false "现场图片"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/submit-repair [post]
func (h *RepairHandler) SubmitRepair(c *gin.Context) {
	requestID := middleware.GetRequestID(c)
	log := h.logger.With(zap.String("request_id", requestID))

	// 非 multipart 请求按普通表单处理，没有图片
	counter := countPhotos(c.Request)
	err := c.Request.ParseMultipartForm(multipartMemory)
	photos := counter.Wait()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.rejectMalformed(c, log, err, photos)
		return
	}

	var files []*multipart.FileHeader
	if mf := c.Request.MultipartForm; mf != nil {
		defer func() { _ = mf.RemoveAll() }()
		files = mf.File[domain.FieldPhotos]
	}

	var form domain.RepairForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		h.rejectMalformed(c, log, err, len(files))
		return
	}

	err = h.repairs.Submit(c.Request.Context(), service.SubmitInput{
		Form:      form,
		Files:     files,
		RequestID: requestID,
	})
	if err != nil {
		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			log.Error("Repair submission failed", zap.Error(err))
		} else {
			log.Info("Repair submission rejected", zap.Strings("errors", resp.Errors))
		}
		c.JSON(status, resp)
		return
	}

	SuccessWithMsg(c, MsgSubmitSuccess)
}

// rejectMalformed 请求体无法解析
//
// 请求体超限按附件错误处理：已读到的图片超过上限为图片过多，否则为单张过大。
func (h *RepairHandler) rejectMalformed(c *gin.Context, log *zap.Logger, err error, photos int) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		cause := domain.ErrFileTooLarge
		if photos > domain.MaxAttachments {
			cause = domain.ErrTooManyFiles
		}
		log.Info("Repair submission body too large",
			zap.Int64("limit", tooLarge.Limit),
			zap.Int("photos", photos),
		)
		status, resp := errorResponse(&domain.AttachmentError{Err: cause})
		c.JSON(status, resp)
		return
	}

	log.Warn("Malformed repair submission", zap.Error(err))
	BadRequest(c, MsgInvalidRequest, nil, "")
}

// GetRules godoc
// @Summary 获取报修表单校验规则
// @Description 浏览器端与服务端共用的字段约束与提示文案
// @Tags Repair
// @Produce json
// @Success 200 {object} Response{data=domain.RuleSet}
// @Router /api/repair/rules [get]
func (h *RepairHandler) GetRules(c *gin.Context) {
	Success(c, domain.Rules())
}
