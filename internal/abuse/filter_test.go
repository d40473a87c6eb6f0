package abuse

import "testing"

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	if f == nil {
		t.Fatal("NewFilter returned nil")
	}
	if len(f.words) == 0 && len(f.phrases) == 0 {
		t.Fatal("NewFilter created an empty filter")
	}
}

func TestCheckBlockedSingleWord(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"mixed case", "BaDwOrD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"clean message", "hello world", false, ""},
		{"partial match no block", "badwording is fine", false, ""},
		{"substring no block", "mybadword", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
			if tt.blocked && result.Reason != "blocked_keyword" {
				t.Errorf("Check(%q).Reason = %q, want blocked_keyword", tt.input, result.Reason)
			}
		})
	}
}

func TestCheckBlockedPhrase(t *testing.T) {
	f := NewFilterWithTerms([]string{"kill yourself", "go die"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact phrase", "kill yourself", true, "kill yourself"},
		{"phrase in sentence", "you should kill yourself now", true, "kill yourself"},
		{"case insensitive phrase", "KILL YOURSELF", true, "kill yourself"},
		{"phrase as substring still matches", "skill yourself", true, "kill yourself"},
		{"go die phrase", "go die already", true, "go die"},
		{"clean message", "i love this chat", false, ""},
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

func TestCheckLeetspeak(t *testing.T) {
	f := NewFilterWithTerms([]string{"spam"})

	tests := []struct {
		input   string
		blocked bool
	}{
		{"sp4m", true},
		{"5p4m", true},
		{"$p@m", true},
		{"spam", true},
		{"spammer", false}, // token is "spammer", not the exact word
		{"clean text", false},
	}

	for _, tt := range tests {
		result := f.Check(tt.input)
		if result.Blocked != tt.blocked {
			t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
		}
	}
}

func TestCheckInterests(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})
	clean := f.CheckInterests([]string{"music", "badword", "gaming"})
	if len(clean) != 2 {
		t.Fatalf("CheckInterests returned %d items, want 2: %v", len(clean), clean)
	}
	for _, interest := range clean {
		if interest == "badword" {
			t.Fatalf("CheckInterests did not filter %q", interest)
		}
	}
}

func TestCheckFallsThroughToSpamHeuristics(t *testing.T) {
	f := NewFilterWithTerms([]string{"unrelated"})
	result := f.Check("check out http://spam.example.com for free stuff")
	if !result.Blocked {
		t.Fatal("Check should have flagged the URL via spam heuristics")
	}
}
