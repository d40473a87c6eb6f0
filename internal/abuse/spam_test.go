package abuse

import "testing"

func TestSpamURLs(t *testing.T) {
	f := NewFilterWithTerms(nil) // no keyword blocklist — isolate spam checks

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"http url", "check out http://evil.com", true},
		{"https url", "visit https://spam.xyz/click", true},
		{"www url", "go to www.phishing.net", true},
		{"bare domain with path", "visit evil.com/free", true},
		{"bare domain .org path", "see example.org/page", true},
		{"bare domain .io path", "check app.io/signup", true},
		{"clean sentence", "let's talk about movies tonight", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Reason != "spam_pattern" {
				t.Errorf("Check(%q).Reason = %q, want spam_pattern", tt.input, result.Reason)
			}
		})
	}
}

func TestSpamPhoneNumbers(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"intl dashed", "+1-555-123-4567", true},
		{"parenthesized area code", "(555) 123-4567", true},
		{"dotted format", "555.123.4567", true},
		{"in sentence", "call me at 555-123-4567 okay?", true},
		{"short number no match", "I'll be there at 5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
		})
	}
}

func TestHasCharFlood(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"hellooooo", true},
		{"aaaaa", true},
		{"hello", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasCharFlood(tt.input); got != tt.want {
			t.Errorf("hasCharFlood(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestHasWordFlood(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"spam spam spam deal now", true},
		{"Spam SPAM spam", true},
		{"hello there friend", false},
		{"a b a b a b", false},
	}
	for _, tt := range tests {
		if got := hasWordFlood(tt.input); got != tt.want {
			t.Errorf("hasWordFlood(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
