package article

import (
	"html"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain text", "B", "B"},
		{"empty", "", ""},
		{"inline markup", "<p>Hello <b>world</b></p>", "Hello world"},
		{"block elements stay apart", "<p>one</p><p>two</p>", "one two"},
		{"whitespace collapsed", "  a \n\t b  ", "a b"},
		{"entities decoded", "<p>Fish &amp; chips</p>", "Fish & chips"},
		{"script content dropped", "<p>x</p><script>alert(1)</script>", "x"},
		{"escaped markup is stripped too", "&lt;b&gt;bold&lt;/b&gt;", "bold"},
		{"lone angle bracket kept", "a < b", "a < b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.body))
		})
	}
}

// TestPlainText_Idempotent verifies stripping plain text is a no-op
func TestPlainText_Idempotent(t *testing.T) {
	bodies := []string{
		"<div><h2>Title</h2><p>Some <a href='/x'>link</a> text.</p></div>",
		"&amp;lt;i&amp;gt;nested&amp;lt;/i&amp;gt;",
		"<ul><li>a</li><li>b</li></ul>",
		"5 &lt; 6 &amp;&amp; 7 &gt; 3",
		"plain",
	}

	for _, body := range bodies {
		once := PlainText(body)
		assert.Equal(t, once, PlainText(once), "PlainText should be idempotent for %q", body)
		assert.NotContains(t, once, "<b>")
		assert.NotContains(t, once, "</")
	}
}

// TestPlainText_DeeplyEscaped verifies markup escaped many times over is
// still stripped completely
func TestPlainText_DeeplyEscaped(t *testing.T) {
	body := "<p>Fish <b>and</b> chips</p>"
	for i := 0; i < 12; i++ {
		body = html.EscapeString(body)
	}
	assert.True(t, strings.HasPrefix(body, "&amp;amp;amp;"), "input should be escaped several levels deep")

	once := PlainText(body)

	assert.Equal(t, "Fish and chips", once)
	assert.Equal(t, once, PlainText(once))
}
