package readiness

import (
	"testing"
	"time"
)

func TestEvaluate_NoCacheNoPermission(t *testing.T) {
	now := time.Now()
	state, cache, _ := Evaluate(nil, "$ ", 80, 24, 2*time.Second, now)
	if state != PaneWaiting {
		t.Fatalf("got %s, want waiting", state)
	}
	if cache.Content != "$ " {
		t.Fatalf("cache not seeded: %+v", cache)
	}
}

func TestEvaluate_NoCacheWithPermission(t *testing.T) {
	now := time.Now()
	content := "Do you want to proceed?\n❯ 1. Yes\n  2. No, and tell Claude what to do differently\nEsc to cancel"
	state, _, _ := Evaluate(nil, content, 80, 24, 2*time.Second, now)
	if state != PanePermission {
		t.Fatalf("got %s, want permission", state)
	}
}

func TestEvaluate_ContentChangedIsWorking(t *testing.T) {
	now := time.Now()
	prev := PaneCacheState{Content: "line one", Width: 80, Height: 24, LastChanged: now.Add(-5 * time.Second)}
	state, cache, wait := Evaluate(&prev, "line one changed entirely now with new tokens here", 80, 24, 2*time.Second, now)
	if state != PaneWorking {
		t.Fatalf("got %s, want working", state)
	}
	if !cache.HasEverChanged {
		t.Fatalf("expected HasEverChanged to be set")
	}
	if wait < 100*time.Millisecond {
		t.Fatalf("expected at least 100ms wait, got %v", wait)
	}
}

func TestEvaluate_ResizeSameContentIsNotChanged(t *testing.T) {
	now := time.Now()
	content := "$ prompt ready here with enough distinct tokens to pass the floor check now"
	prev := PaneCacheState{Content: content, Width: 80, Height: 24, LastChanged: now.Add(-10 * time.Second), HasEverChanged: false}
	// Same logical content rewrapped at a new width: token sets are
	// identical, so overlap ratio is 1.0 and this must NOT count as change.
	state, _, _ := Evaluate(&prev, content, 100, 24, 2*time.Second, now)
	if state != PaneWaiting {
		t.Fatalf("got %s, want waiting (resize-only should not look like change)", state)
	}
}

func TestEvaluate_GracePeriodKeepsWorking(t *testing.T) {
	now := time.Now()
	prev := PaneCacheState{
		Content:        "still the same prompt",
		Width:          80,
		Height:         24,
		LastChanged:    now.Add(-500 * time.Millisecond),
		HasEverChanged: true,
	}
	state, _, wait := Evaluate(&prev, "still the same prompt", 80, 24, 2*time.Second, now)
	if state != PaneWorking {
		t.Fatalf("got %s, want working (within grace period)", state)
	}
	if wait <= 0 || wait > 2*time.Second {
		t.Fatalf("unexpected wait: %v", wait)
	}
}

func TestEvaluate_PastGraceBecomesWaiting(t *testing.T) {
	now := time.Now()
	prev := PaneCacheState{
		Content:        "still the same prompt",
		Width:          80,
		Height:         24,
		LastChanged:    now.Add(-10 * time.Second),
		HasEverChanged: true,
	}
	state, _, _ := Evaluate(&prev, "still the same prompt", 80, 24, 2*time.Second, now)
	if state != PaneWaiting {
		t.Fatalf("got %s, want waiting", state)
	}
}
