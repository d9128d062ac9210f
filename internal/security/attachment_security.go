package security

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"repairdesk/backend/internal/domain"
)

const svgMediaType = "image/svg+xml"

var markupPrefixes = [][]byte{
	[]byte("<?xml"),
	[]byte("<svg"),
	[]byte("<!doctype"),
}

// AttachmentSecurity 报修图片安全检查器
type AttachmentSecurity struct {
	// 允许的 MIME 类型前缀
	typePrefix string

	// 最大文件大小（字节）
	maxFileSize int64

	// 危险文件扩展名
	dangerousExtensions map[string]bool
}

// NewAttachmentSecurity 创建图片安全检查器
func NewAttachmentSecurity() *AttachmentSecurity {
	return &AttachmentSecurity{
		typePrefix:  domain.AttachmentTypePrefix,
		maxFileSize: domain.MaxAttachmentSize,
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".php": true,
			".sh":  true,
			".svg": true,
		},
	}
}

// MaxFileSize 返回单个文件大小上限
func (as *AttachmentSecurity) MaxFileSize() int64 {
	return as.maxFileSize
}

// CheckDeclared 根据客户端声明的文件名、MIME 类型和大小检查附件
//
// 返回值:
//   - domain.ErrInvalidFileType: 非图片类型或危险扩展名
//   - domain.ErrFileTooLarge: 超过大小上限
func (as *AttachmentSecurity) CheckDeclared(filename, mimeType string, size int64) error {
	if as.isDangerousExtension(filename) {
		return domain.ErrInvalidFileType
	}

	if !as.isAllowedType(mimeType) {
		return domain.ErrInvalidFileType
	}

	if size > as.maxFileSize {
		return domain.ErrFileTooLarge
	}

	return nil
}

// CheckHeader 检查文件头部魔数，拒绝伪装成图片的可执行文件
func (as *AttachmentSecurity) CheckHeader(header []byte) error {
	executableSignatures := [][]byte{
		{0x4D, 0x5A},             // PE executable
		{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
		{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return domain.ErrInvalidFileType
		}
	}

	// 文本标记开头的内容不是位图，挡住改了扩展名的 SVG
	text := bytes.ToLower(bytes.TrimLeft(header, "\xef\xbb\xbf \t\r\n"))
	for _, prefix := range markupPrefixes {
		if bytes.HasPrefix(text, prefix) {
			return domain.ErrInvalidFileType
		}
	}

	return nil
}

// isDangerousExtension 检查文件扩展名
func (as *AttachmentSecurity) isDangerousExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return as.dangerousExtensions[ext]
}

// isAllowedType 检查 MIME 类型是否以 image/ 开头，SVG 可内嵌脚本，不允许
func (as *AttachmentSecurity) isAllowedType(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, as.typePrefix) && mediaType != svgMediaType
}
