package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// ToChatHTML converts an assistant's markdown reply to HTML safe to embed in
// the chat window. Only a small set of formatting tags survives; everything
// else is stripped so a model reply cannot inject markup.
func ToChatHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return sanitizeChatHTML(html)
}

var (
	paragraphRe = regexp.MustCompile(`<p>(.*?)</p>`)
	preCodeRe   = regexp.MustCompile(`<pre><code(?: class="[^"]*")?>((?s).*?)</code></pre>`)
	tagRe       = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagNameRe   = regexp.MustCompile(`</?([a-zA-Z]+)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

var supportedTags = []string{"b", "i", "u", "s", "code", "pre", "a", "br", "strong", "em", "ul", "ol", "li", "blockquote"}

func sanitizeChatHTML(html string) string {
	// Keep paragraph text, drop the wrapping tags
	html = paragraphRe.ReplaceAllString(html, "$1\n")

	// Normalize fenced code blocks
	html = preCodeRe.ReplaceAllString(html, "<pre>$1</pre>")

	// Drop every tag outside the allow list
	html = tagRe.ReplaceAllStringFunc(html, func(match string) string {
		tagMatch := tagNameRe.FindStringSubmatch(match)
		if len(tagMatch) > 1 {
			tagName := strings.ToLower(tagMatch[1])
			for _, supported := range supportedTags {
				if tagName == supported {
					return match
				}
			}
		}
		return ""
	})

	// Clean up extra newlines
	html = newlinesRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
