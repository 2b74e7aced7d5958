package voice

import (
	"regexp"
	"strings"
)

var (
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	mdBold    = regexp.MustCompile(`\*\*([^\*]+)\*\*`)
	mdItalic  = regexp.MustCompile(`\*([^\*]+)\*`)
	mdCode    = regexp.MustCompile("`([^`]+)`")
	noisy     = regexp.MustCompile(`[#\*\-\+=><\|\[\]{}]`)
	spaceRuns = regexp.MustCompile(`\s+`)
)

// Sanitize strips markdown and symbols that read badly aloud. The result
// cannot be turned back into the original text.
func Sanitize(text string) string {
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdBold.ReplaceAllString(text, "$1")
	text = mdItalic.ReplaceAllString(text, "$1")
	text = mdCode.ReplaceAllString(text, "$1")
	text = noisy.ReplaceAllString(text, " ")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
