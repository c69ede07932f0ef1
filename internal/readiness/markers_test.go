package readiness

import (
	"math/rand"
	"testing"
)

func TestClassify_CodexBusyDetection(t *testing.T) {
	chunk := "• Working (2s • esc to interrupt)\n"
	if got := Classify(chunk, FamilyCodex); got != SignalBusy {
		t.Fatalf("codex: got %s, want busy", got)
	}
	if got := Classify(chunk, FamilyClaude); got != SignalNone {
		t.Fatalf("claude: got %s, want none", got)
	}
}

func TestClassify_ClaudePromptDetection(t *testing.T) {
	chunk := "────────────────────────\n❯ status?\n────────────────────────\n? for shortcuts\n"
	if got := Classify(chunk, FamilyClaude); got != SignalPrompt {
		t.Fatalf("got %s, want prompt", got)
	}
}

func TestClassify_GlyphWithoutContext(t *testing.T) {
	chunk := "› hello there\n"
	if got := Classify(chunk, FamilyCodex); got != SignalNone {
		t.Fatalf("got %s, want none", got)
	}
}

func TestClassify_ClaudeThinkingGlyph(t *testing.T) {
	chunk := "✶ Pondering (thinking)\n"
	if got := Classify(chunk, FamilyClaude); got != SignalBusy {
		t.Fatalf("got %s, want busy", got)
	}
	if got := Classify(chunk, FamilyCodex); got != SignalNone {
		t.Fatalf("codex: got %s, want none", got)
	}
}

// TestClassify_ChunkBoundaryInvariance is the quantified property from
// spec §8: classification of the final tail must not depend on how the
// byte stream was split into chunks.
func TestClassify_ChunkBoundaryInvariance(t *testing.T) {
	full := "────────────────────────\n❯ status?\n────────────────────────\n? for shortcuts\n"
	want := Classify(full, FamilyClaude)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		tail := NewTail()
		pos := 0
		for pos < len(full) {
			remaining := len(full) - pos
			n := 1 + rng.Intn(remaining)
			tail.Append([]byte(full[pos : pos+n]))
			pos += n
		}
		got := Classify(tail.String(), FamilyClaude)
		if got != want {
			t.Fatalf("trial %d: got %s, want %s", trial, got, want)
		}
	}
}
