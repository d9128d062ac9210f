package domain

// OutboundMessage 发往维修邮箱的邮件。
//
// 发件人与收件人由邮件发送器根据配置决定，这里只描述内容。
type OutboundMessage struct {
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []MessageAttachment
}

// MessageAttachment 邮件中的一个二进制附件
type MessageAttachment struct {
	Filename    string // 展示给收件人的文件名，如 photo-1.jpg
	ContentType string
	Path        string // 上传目录中的存储路径，发送器从这里读取内容
	Size        int64
}
