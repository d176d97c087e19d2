package gateway

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestApplyTruncatesToBudget(t *testing.T) {
	s := Shaper{MaxChars: 10}
	got := s.Apply("this reply is far too long for the budget")
	if n := utf8.RuneCountInString(got); n > 10 {
		t.Errorf("length = %d runes, must not exceed 10 (%q)", n, got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated reply missing ellipsis: %q", got)
	}
	if strings.Count(got, "…") != 1 {
		t.Errorf("want exactly one ellipsis: %q", got)
	}
}

func TestApplyShortReplyUntouched(t *testing.T) {
	s := Shaper{MaxChars: 400}
	if got := s.Apply("short"); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestApplyAppendsSignatureOnce(t *testing.T) {
	s := Shaper{MaxChars: 400, Signature: "— Bot 🤝"}

	got := s.Apply("hello")
	if !strings.HasSuffix(got, "— Bot 🤝") {
		t.Fatalf("signature missing: %q", got)
	}
	if strings.Count(got, "— Bot 🤝") != 1 {
		t.Errorf("signature duplicated: %q", got)
	}

	// Already signed: not doubled.
	again := s.Apply(got)
	if strings.Count(again, "— Bot 🤝") != 1 {
		t.Errorf("signature doubled on re-apply: %q", again)
	}
}

func TestApplyNoSignatureConfigured(t *testing.T) {
	s := Shaper{MaxChars: 400}
	if got := s.Apply("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestCleanScrubsExoticSpaces(t *testing.T) {
	in := "a\u202fb\u00a0c"
	if got := Clean(in); got != "a b c" {
		t.Errorf("Clean(%q) = %q, want %q", in, got, "a b c")
	}
}

func TestCleanTrims(t *testing.T) {
	if got := Clean("  padded \n"); got != "padded" {
		t.Errorf("got %q", got)
	}
}

func TestApplyMultibyteBudget(t *testing.T) {
	s := Shaper{MaxChars: 5}
	got := s.Apply("ééééééééé")
	if n := utf8.RuneCountInString(got); n > 5 {
		t.Errorf("rune count = %d, want <= 5 (%q)", n, got)
	}
}
