package respond

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// fuzzyMinLen is the shortest keyword that may match approximately. Shorter
// keywords ("open", "kill") only match exactly; fuzzy matching them would
// fire on unrelated words.
const fuzzyMinLen = 5

// Keyword scores below these thresholds never match.
const (
	phoneticThreshold = 0.80
	fuzzyThreshold    = 0.90
)

// maxLenDelta bounds the length difference of an approximate match, so a
// prefix ("good") does not match the whole keyword ("goodbye").
const maxLenDelta = 2

// Keywords maps each intent to the phrases that select it when the model
// classifier is unavailable. Phrases may span several words.
type Keywords map[Kind][]string

// DefaultKeywords is used when no keywords are configured.
func DefaultKeywords() Keywords {
	return Keywords{
		Exit:           {"goodbye", "go to sleep", "stop listening", "that's all"},
		InstallPackage: {"install", "download"},
		ExecuteCommand: {"run command", "execute", "run this"},
		LaunchApp:      {"open", "launch"},
		CloseApp:       {"close", "quit", "kill"},
	}
}

// keywordOrder is the precedence when several intents match.
var keywordOrder = []Kind{Exit, InstallPackage, ExecuteCommand, LaunchApp, CloseApp}

// matcher spots keyword phrases in recognised text. Recognition errors
// usually keep a word's sound ("lunch" for "launch"), so a phrase matches when
// its Double Metaphone codes overlap the spoken words and the Jaro-Winkler
// similarity is high enough, or, without phonetic overlap, when the
// similarity alone is very high.
type matcher struct {
	keywords Keywords
}

// classify returns the first intent in precedence order whose keywords occur
// in text, and GeneralQuery when none do.
func (m matcher) classify(text string) Kind {
	tokens := Tokens(text)
	for _, k := range keywordOrder {
		for _, phrase := range m.keywords[k] {
			if _, ok := ContainsPhrase(tokens, phrase); ok {
				return k
			}
		}
	}
	return GeneralQuery
}

// Tokens lower-cases text and splits it into words, keeping apostrophes.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// ContainsPhrase reports whether phrase occurs as a run of consecutive tokens,
// exactly or approximately, and the similarity of the best run.
func ContainsPhrase(tokens []string, phrase string) (float64, bool) {
	want := Tokens(phrase)
	if len(want) == 0 || len(tokens) < len(want) {
		return 0, false
	}
	joined := strings.Join(want, " ")
	fuzzy := len(strings.Join(want, "")) >= fuzzyMinLen

	best := 0.0
	for i := 0; i+len(want) <= len(tokens); i++ {
		run := tokens[i : i+len(want)]
		got := strings.Join(run, " ")
		if got == joined {
			return 1, true
		}
		if !fuzzy || abs(len(got)-len(joined)) > maxLenDelta {
			continue
		}
		score := matchr.JaroWinkler(got, joined, false)
		threshold := fuzzyThreshold
		if codesOverlap(codes(run), codes(want)) {
			threshold = phoneticThreshold
		}
		if score >= threshold && score > best {
			best = score
		}
	}
	return best, best > 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// appVerbs introduce an application name.
var appVerbs = map[string]bool{"open": true, "launch": true, "start": true, "close": true, "quit": true, "kill": true}

// ExtractApp returns the word after the first open/launch/start/close/quit/kill
// verb, skipping articles.
func ExtractApp(text string) string {
	tokens := Tokens(text)
	for i, t := range tokens {
		if !appVerbs[t] {
			continue
		}
		for _, next := range tokens[i+1:] {
			if next == "the" || next == "a" || next == "an" || next == "my" {
				continue
			}
			return next
		}
	}
	return ""
}
