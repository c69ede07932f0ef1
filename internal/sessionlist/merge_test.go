package sessionlist

import (
	"testing"
	"time"
)

// TestMerge_InactivityCutoff is spec §8 scenario 6.
func TestMerge_InactivityCutoff(t *testing.T) {
	now := time.Unix(10*3600, 0).UTC()
	persisted := []Summary{
		{ID: "old", Status: StatusExited, LastSeenAt: now.Add(-2 * time.Hour)},
		{ID: "recent", Status: StatusExited, LastSeenAt: now.Add(-30 * time.Minute)},
	}
	out := Merge(nil, persisted, 1, 0, now)
	if len(out) != 1 || out[0].ID != "recent" {
		t.Fatalf("expected only 'recent' to survive a 1h cutoff, got %+v", out)
	}
}

// TestMerge_RunningPersistedCoercedToExited covers the quantified
// invariant: no returned entry has status=running unless it came from
// the live list.
func TestMerge_RunningPersistedCoercedToExited(t *testing.T) {
	now := time.Now()
	persisted := []Summary{
		{ID: "stale", Status: StatusRunning, LastSeenAt: now},
	}
	out := Merge(nil, persisted, 24, 0, now)
	if len(out) != 1 || out[0].Status != StatusExited {
		t.Fatalf("expected persisted running row coerced to exited, got %+v", out)
	}
}

func TestMerge_LiveWinsOnIDConflict(t *testing.T) {
	now := time.Now()
	persisted := []Summary{{ID: "a", Status: StatusRunning, Cwd: "/stale", LastSeenAt: now}}
	live := []Summary{{ID: "a", Status: StatusRunning, Cwd: "/live", LastSeenAt: now}}
	out := Merge(live, persisted, 24, 0, now)
	if len(out) != 1 || out[0].Cwd != "/live" {
		t.Fatalf("expected live entry to win, got %+v", out)
	}
	if out[0].Status != StatusRunning {
		t.Fatalf("live entry must be allowed to report running, got %s", out[0].Status)
	}
}

func TestMerge_SortedByRecencyDescending(t *testing.T) {
	now := time.Now()
	live := []Summary{
		{ID: "a", LastSeenAt: now.Add(-1 * time.Hour)},
		{ID: "b", LastSeenAt: now},
	}
	out := Merge(live, nil, 24, 0, now)
	if len(out) != 2 || out[0].ID != "b" || out[1].ID != "a" {
		t.Fatalf("expected [b, a] by recency descending, got %+v", out)
	}
}

func TestMerge_LimitTruncates(t *testing.T) {
	now := time.Now()
	live := []Summary{
		{ID: "a", LastSeenAt: now.Add(-2 * time.Hour)},
		{ID: "b", LastSeenAt: now.Add(-1 * time.Hour)},
		{ID: "c", LastSeenAt: now},
	}
	out := Merge(live, nil, 24, 2, now)
	if len(out) != 2 || out[0].ID != "c" || out[1].ID != "b" {
		t.Fatalf("expected top-2 by recency, got %+v", out)
	}
}

func TestClampInactiveMaxAgeHours(t *testing.T) {
	cases := map[int]int{0: 24, -5: 1, 1: 1, 168: 168, 999: 168}
	for in, want := range cases {
		if got := ClampInactiveMaxAgeHours(in); got != want {
			t.Fatalf("ClampInactiveMaxAgeHours(%d) = %d, want %d", in, got, want)
		}
	}
}
