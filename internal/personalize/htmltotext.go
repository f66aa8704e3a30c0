package personalize

import (
	"regexp"
	"strings"
)

var (
	breakRegex = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/h[1-6]|/li)\s*>`)
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	blankRegex = regexp.MustCompile(`\n{3,}`)
)

// entity replacements, applied after tag stripping. A fixed set, not a full
// HTML entity table: these are the ones email template editors produce.
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

// HTMLToText derives the plain-text part of an email from its HTML body.
// Block-closing tags become newlines, all remaining tags are stripped, the
// fixed entity set is unescaped, and runs of blank lines are collapsed.
func HTMLToText(html string) string {
	text := breakRegex.ReplaceAllString(html, "\n")
	text = tagRegex.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	text = blankRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
