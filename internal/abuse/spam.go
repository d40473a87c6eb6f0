package abuse

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled once at package init and reused for every Check call.
var (
	// urlPattern matches http/https URLs, www. URLs, and bare domains with a
	// trailing slash (to avoid false positives on version strings like "v2.0").
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz)/\S*)`)

	// phonePattern matches common phone number formats, anchored to
	// whitespace/string boundaries to avoid matching short numbers embedded
	// in ordinary words.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

type spamCheck struct {
	name  string
	match func(string) bool
}

var spamChecks = []spamCheck{
	{name: "url", match: func(text string) bool { return urlPattern.MatchString(text) }},
	{name: "phone", match: func(text string) bool { return phonePattern.MatchString(text) }},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

// hasCharFlood reports whether text contains 5 or more consecutive
// identical characters.
func hasCharFlood(text string) bool {
	const threshold = 5
	count, prev := 1, rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count, prev = 1, r
		}
	}
	return false
}

// hasWordFlood reports whether the same word appears 3 or more times
// consecutively (case-insensitive).
func hasWordFlood(text string) bool {
	const threshold = 3
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count, prev := 1, ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count, prev = 1, lower
		}
	}
	return false
}

// checkSpamPatterns runs every spam heuristic against text and returns the
// first match, or a zero-value (non-blocking) result.
func checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return FilterResult{}
}
