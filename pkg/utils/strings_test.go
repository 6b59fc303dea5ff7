package utils

import "testing"

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := Truncate("hello", 50); got != "hello" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
}

func TestTruncateLongStringGetsEllipsis(t *testing.T) {
	in := "this message is definitely longer than the configured title limit"
	got := Truncate(in, 50)
	if len([]rune(got)) != 53 {
		t.Fatalf("expected 50 runes plus ellipsis, got %d runes (%q)", len([]rune(got)), got)
	}
	if got[:10] != in[:10] {
		t.Fatalf("expected prefix preserved, got %q", got)
	}
}

func TestTruncateCountsRunesNotBytes(t *testing.T) {
	in := "héllo wörld"
	got := Truncate(in, 5)
	if got != "héllo..." {
		t.Fatalf("expected rune-based cut, got %q", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("  first\nsecond"); got != "first" {
		t.Fatalf("expected %q, got %q", "first", got)
	}
	if got := FirstLine("only"); got != "only" {
		t.Fatalf("expected %q, got %q", "only", got)
	}
}
