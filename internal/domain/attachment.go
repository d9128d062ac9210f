package domain

import "time"

// 附件限制
const (
	MaxAttachments       = 5               // 单次报修最多上传的图片数量
	MaxAttachmentSize    = 5 * 1024 * 1024 // 单张图片最大字节数（5MB）
	AttachmentTypePrefix = "image/"        // 允许的 MIME 类型前缀
)

// Attachment 表示一次报修提交中已落盘的图片。
//
// 附件在整个生命周期内由上传会话独占持有：
// 邮件发送完成（无论成功失败）或校验失败时删除，
// 兜底由过期清理任务删除。
type Attachment struct {
	Key          string    `json:"key"`          // 唯一存储键（不含扩展名）
	Ext          string    `json:"ext"`          // 原始扩展名（小写，含点），可能为空
	OriginalName string    `json:"originalName"` // 客户端提交的文件名
	ContentType  string    `json:"contentType"`  // 声明的 MIME 类型
	Size         int64     `json:"size"`         // 实际写入的字节数
	StoragePath  string    `json:"-"`            // 文件绝对路径
	CreatedAt    time.Time `json:"createdAt"`
}

// StorageName 返回磁盘上的文件名 <key><ext>
func (a *Attachment) StorageName() string {
	return a.Key + a.Ext
}
