package render

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order; bold must be stripped before italics.
var textRules = []rewrite{
	{regexp.MustCompile(`#{1,6}\s*`), ""},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile("`(.*?)`"), "$1"},
	{regexp.MustCompile(`\[(.*?)\]\(.*?\)`), "$1"},
	{regexp.MustCompile(`\|.*?\|`), ""},
	{regexp.MustCompile(`-{3,}`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// ToText strips Markdown markup and leaves readable plain text.
func ToText(md string) string {
	text := md
	for _, r := range textRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}
