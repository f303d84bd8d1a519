package speech

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Order matters: code blocks go before emphasis so their contents are not
// rewritten, and list markers go before emphasis so "* item" is not read as
// the start of an italic span.
var speechRewrites = []rewrite{
	{regexp.MustCompile("(?s)```.*?```"), ""},
	{regexp.MustCompile("`([^`]+)`"), "$1"},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
	{regexp.MustCompile(`(?m)^#+\s+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*[*+-][ \t]+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`), ""},
	{regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
	{regexp.MustCompile(`\*([^*\n]+)\*`), "$1"},
	{regexp.MustCompile(`__([^_]+)__`), "$1"},
	{regexp.MustCompile(`(^|\W)_([^_\n]+)_(\W|$)`), "$1$2$3"},
	{regexp.MustCompile(`\n[ \t]*\n\s*`), ". "},
	{regexp.MustCompile(`\s+`), " "},
	{regexp.MustCompile(`\s+([.,!?])`), "$1"},
}

var duplicatePunct = regexp.MustCompile(`([.,!?])\s*[.,!?]`)

// CleanForSpeech strips markdown from text and normalises whitespace so a
// synthesiser does not read markup aloud. Paragraph breaks become sentence
// breaks; runs of punctuation collapse to their first mark.
func CleanForSpeech(text string) string {
	for _, rw := range speechRewrites {
		text = rw.re.ReplaceAllString(text, rw.repl)
	}
	for {
		next := duplicatePunct.ReplaceAllString(text, "$1")
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}
