package security

import "strings"

// htmlEscaper 单次从左到右扫描替换，& 先于其他字符处理，不会二次转义已生成的实体
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeHTML 转义用户输入，以便安全地嵌入 HTML 邮件正文
//
// 替换 & < > " ' / 六个字符。只用于文本字段，附件内容不经过这里。
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}
