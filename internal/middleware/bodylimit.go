package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"repairdesk/backend/internal/domain"
)

// SubmitBodyLimit 报修提交请求体上限：全部图片加上文本字段与 multipart 开销
const SubmitBodyLimit = domain.MaxAttachments*domain.MaxAttachmentSize + 1*1024*1024

// BodySizeLimit 限制请求体大小的中间件
//
// 只限制读取量，读取超限时处理器会收到 *http.MaxBytesError，由处理器决定如何响应。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		// 告知客户端最大允许的请求体大小
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}
