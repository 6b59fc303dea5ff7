package channels

import (
	"strings"
	"testing"
)

func TestSplitMessageShortContentUntouched(t *testing.T) {
	chunks := splitMessage("hello", 1500)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestSplitMessagePrefersNewlineBoundary(t *testing.T) {
	content := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 90)
	chunks := splitMessage(content, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 90) {
		t.Fatalf("expected split at newline, got %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("b", 90) {
		t.Fatalf("unexpected second chunk %q", chunks[1])
	}
}

func TestSplitMessageFallsBackToSpace(t *testing.T) {
	content := strings.Repeat("a", 95) + " " + strings.Repeat("b", 95)
	chunks := splitMessage(content, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 95) {
		t.Fatalf("expected split at space, got %q", chunks[0])
	}
}

func TestSplitMessageHardCutWithoutBoundary(t *testing.T) {
	content := strings.Repeat("a", 250)
	chunks := splitMessage(content, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 {
		t.Fatalf("expected hard cut at limit, got %d bytes", len(chunks[0]))
	}
}

func TestSplitMessageExtendsToCloseCodeFence(t *testing.T) {
	code := "```\n" + strings.Repeat("x\n", 60) + "```"
	content := strings.Repeat("intro text\n", 2) + code + "\ntrailer"
	chunks := splitMessage(content, 100)

	for _, chunk := range chunks {
		if strings.Count(chunk, "```")%2 != 0 {
			t.Fatalf("chunk with unclosed fence: %q", chunk)
		}
	}
}

func TestSplitMessageSplitsBeforeUnclosableFence(t *testing.T) {
	// Fence closes far beyond the slack window, so the split happens
	// before the fence opens.
	content := "before text\n```\n" + strings.Repeat("y", 2000) + "\n```"
	chunks := splitMessage(content, 100)

	if chunks[0] != "before text" {
		t.Fatalf("expected split before fence, got %q", chunks[0])
	}
}

func TestIsAllowed(t *testing.T) {
	open := NewBaseChannel("discord", nil, nil)
	if !open.IsAllowed("anyone") {
		t.Fatalf("empty allowlist must admit everyone")
	}

	restricted := NewBaseChannel("discord", nil, []string{"12345", "@alice", " "})
	cases := map[string]bool{
		"12345":       true,
		"12345|alice": true,
		"999|alice":   true,
		"999|bob":     false,
		"999":         false,
	}
	for sender, want := range cases {
		if got := restricted.IsAllowed(sender); got != want {
			t.Errorf("IsAllowed(%q) = %v, want %v", sender, got, want)
		}
	}
}
