package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// maxExtensionLength 扩展名（含点）最大长度
const maxExtensionLength = 10

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// SanitizeFilename 清理文件名，确保跨平台兼容
func (p *PlatformUtils) SanitizeFilename(filename string) string {
	// 1. 统一分隔符后只保留最后一段
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)

	// 2. 替换不允许的字符
	for _, char := range p.getInvalidChars() {
		filename = strings.ReplaceAll(filename, char, "_")
	}

	// 3. 移除控制字符
	filename = p.removeControlChars(filename)

	// 4. 限制长度
	filename = p.limitLength(filename, 200)

	// 5. 移除前后空格和点
	return strings.Trim(filename, " .")
}

// SafeExtension 提取小写扩展名（含点）
//
// 只保留由字母数字组成、长度合理的扩展名，否则返回空串。
func (p *PlatformUtils) SafeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(p.SanitizeFilename(filename)))
	if len(ext) < 2 || len(ext) > maxExtensionLength {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// getInvalidChars 获取当前平台不允许的字符
func (p *PlatformUtils) getInvalidChars() []string {
	switch runtime.GOOS {
	case "darwin", "linux":
		return []string{"/", "\x00"}
	default:
		// Windows 及未知平台按最严格处理
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
}

// removeControlChars 移除控制字符
func (p *PlatformUtils) removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// limitLength 限制字符串长度，保留扩展名
func (p *PlatformUtils) limitLength(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	ext := filepath.Ext(s)
	nameWithoutExt := strings.TrimSuffix(s, ext)

	availableLen := maxLen - len(ext)
	if availableLen <= 0 {
		return ext
	}

	return nameWithoutExt[:availableLen] + ext
}

// ValidatePath 验证路径是否安全
func (p *PlatformUtils) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	if len(path) > 2000 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}

	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}

	return nil
}

// IsCaseSensitive 检查当前文件系统是否大小写敏感
func (p *PlatformUtils) IsCaseSensitive() bool {
	return runtime.GOOS != "windows"
}

// NormalizePath 转换为清理后的绝对路径
func (p *PlatformUtils) NormalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	cleanPath := filepath.Clean(absPath)
	if !p.IsCaseSensitive() {
		cleanPath = strings.ToLower(cleanPath)
	}

	return cleanPath
}

// IsValidFilename 检查存储文件名是否可以直接放在上传目录下
func (p *PlatformUtils) IsValidFilename(filename string) bool {
	if filename == "" || filename != filepath.Base(filename) {
		return false
	}

	if strings.Trim(filename, " .") == "" {
		return false
	}

	for _, char := range p.getInvalidChars() {
		if strings.Contains(filename, char) {
			return false
		}
	}

	return len(filename) <= 255
}
