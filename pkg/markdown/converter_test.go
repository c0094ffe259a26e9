package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToChatHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty input", "", ""},
		{"plain text", "hello world", "hello world"},
		{"bold", "some **bold** text", "some <strong>bold</strong> text"},
		{"emphasis", "an *important* word", "an <em>important</em> word"},
		{"inline code", "run `go version` first", "run <code>go version</code> first"},
		{"heading tags stripped", "# Title\n\nbody", "Title\n\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToChatHTML(tt.input))
		})
	}
}

func TestToChatHTMLKeepsLists(t *testing.T) {
	out := ToChatHTML("- one\n- two")
	assert.Contains(t, out, "<ul>")
	assert.Contains(t, out, "<li>one</li>")
	assert.Contains(t, out, "<li>two</li>")
}

func TestToChatHTMLStripsUnsupportedTags(t *testing.T) {
	out := ToChatHTML(`<script>alert("x")</script> <div>hi</div>`)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<div")
	assert.Contains(t, out, "hi")
}

func TestToChatHTMLCodeBlock(t *testing.T) {
	out := ToChatHTML("```go\nfmt.Println(1)\n```")
	assert.Contains(t, out, "<pre>")
	assert.Contains(t, out, "fmt.Println(1)")
	assert.NotContains(t, out, "class=")
}
