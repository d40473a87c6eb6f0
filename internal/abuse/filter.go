// Package abuse implements the content filter, ban escalation, and optional
// abuse-report persistence supplementing SessionRelay's chat channel
// (§4.5a). None of it touches core matching state.
package abuse

import (
	"strings"
)

// FilterResult is the outcome of screening one chat message.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string
}

// Filter screens chat text against a blocked-word/phrase list and a small
// set of spam heuristics, tolerating common leetspeak substitutions.
// Adapted from the teacher's moderation package: word/phrase matching plus
// the spam detectors (URL, phone number, character/word flooding).
type Filter struct {
	words   map[string]struct{}
	phrases []string
}

// defaultBlocklist is a representative, non-exhaustive starter list; real
// deployments should load a curated list via NewFilterWithTerms instead.
var defaultBlocklist = []string{
	"kill yourself",
	"kys",
	"send nudes",
	"bomb threat",
	"free bitcoin",
	"child porn",
}

// NewFilter constructs a Filter using the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultBlocklist)
}

// NewFilterWithTerms constructs a Filter from an explicit term list. Empty
// and whitespace-only entries are discarded. Multi-word entries are treated
// as phrases (matched against normalized whitespace-joined text); single
// words are matched per-token so that substrings don't false-positive.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{
		words: make(map[string]struct{}),
	}
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			f.phrases = append(f.phrases, t)
		} else {
			f.words[t] = struct{}{}
		}
	}
	return f
}

// Check screens text, returning the first match found. It checks blocked
// phrases, then blocked words (with leetspeak normalization), then spam
// heuristics.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)

	for _, phrase := range f.phrases {
		if strings.Contains(lower, phrase) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: phrase}
		}
	}

	for _, tok := range tokenizePlain(lower) {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}

	for _, tok := range tokenizeLeet(lower) {
		normalized := normalizeLeet(tok)
		if normalized == tok {
			continue // already covered by the plain-token pass above
		}
		if _, ok := f.words[normalized]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: normalized}
		}
	}

	return checkSpamPatterns(text)
}

// CheckInterests filters a list of free-text interest tags, returning only
// the ones that pass Check.
func (f *Filter) CheckInterests(interests []string) []string {
	clean := make([]string, 0, len(interests))
	for _, interest := range interests {
		if !f.Check(interest).Blocked {
			clean = append(clean, interest)
		}
	}
	return clean
}

// leetMap maps common leetspeak substitutions to their plain letter.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// normalizeLeet replaces leetspeak substitutions in tok with their plain
// letter equivalents.
func normalizeLeet(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	for _, r := range tok {
		if plain, ok := leetMap[r]; ok {
			b.WriteRune(plain)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokenizePlain splits text on whitespace and punctuation, discarding empty
// tokens.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// tokenizeLeet splits text on whitespace only, preserving leetspeak
// punctuation (@, $, !, etc.) within tokens so normalizeLeet can undo it.
func tokenizeLeet(text string) []string {
	return strings.Fields(text)
}
