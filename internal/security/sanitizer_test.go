package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain text", "教室灯管不亮", "教室灯管不亮"},
		{"all special characters", `<b>&'"/ </b>`, "&lt;b&gt;&amp;&#x27;&quot;&#x2F; &lt;&#x2F;b&gt;"},
		{"existing entity is escaped once", "&amp;", "&amp;amp;"},
		{"script tag", "<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;&#x2F;script&gt;"},
		{"ampersand next to entity text", "a&lt;b", "a&amp;lt;b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EscapeHTML(tt.input))
		})
	}
}

func TestEscapeHTMLNoDoubleEncoding(t *testing.T) {
	out := EscapeHTML("&<")
	assert.Equal(t, "&amp;&lt;", out)
	assert.NotContains(t, out, "&amp;lt;")
}
