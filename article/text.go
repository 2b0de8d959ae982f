package article

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = newStripPolicy()

func newStripPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	// Keep words from adjacent block elements apart: <p>a</p><p>b</p> -> "a b"
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// PlainText derives the plain-text rendering of an article body. All markup
// is removed, entities are decoded and whitespace is collapsed. The result is
// a fixpoint, so PlainText(PlainText(b)) == PlainText(b).
//
// Each pass that changes the text removes a tag or decodes a level of
// escaping, so the loop ends however deeply the input was escaped.
func PlainText(body string) string {
	text := body
	for {
		next := stripOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func stripOnce(s string) string {
	stripped := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(stripped), " ")
}
