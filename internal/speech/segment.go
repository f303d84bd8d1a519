// Package speech turns response text into audio played in order.
//
// Text is cleaned of markup ([CleanForSpeech]), split into sentences
// ([Segment]) and handed to a [Pipeline], which synthesises the next sentences
// while the current one is playing.
package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unit is one speakable sentence of a response.
type Unit struct {
	// Index is the position of the unit within its response, from 0.
	Index int
	// Text is the trimmed, non-empty sentence.
	Text string
}

// Segment splits text after every '.', '!' or '?' that is followed by
// whitespace. Units are trimmed and empty ones dropped. Text without a
// boundary yields a single unit; blank text yields none.
func Segment(text string) []Unit {
	var units []Unit
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			units = append(units, Unit{Index: len(units), Text: s})
		}
	}

	for {
		i := firstSentenceBoundary(text)
		if i < 0 {
			add(text)
			return units
		}
		add(text[:i+1])
		text = text[i+1:]
	}
}

// firstSentenceBoundary returns the byte index of the first sentence-ending
// punctuation mark followed by whitespace, or -1.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			r, _ := utf8.DecodeRuneInString(s[i+1:])
			if unicode.IsSpace(r) {
				return i
			}
		}
	}
	return -1
}
