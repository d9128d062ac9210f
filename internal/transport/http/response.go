package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构，浏览器端按 success 判断结果
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`          // 中文提示信息
	Errors  []string    `json:"errors,omitempty"` // 逐条校验提示
	Field   string      `json:"field,omitempty"`  // 第一个出错的字段，浏览器据此滚动定位
	Data    interface{} `json:"data,omitempty"`   // 数据载荷
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "成功",
		Data:    data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: msg,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string, errs []string, field string) {
	c.JSON(http.StatusBadRequest, Response{
		Message: msg,
		Errors:  errs,
		Field:   field,
	})
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{
		Message: msg,
	})
}
