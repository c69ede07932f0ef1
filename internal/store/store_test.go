package store

import (
	"testing"
	"time"

	"github.com/agmux/agmux-core/internal/registry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	s, err := Open(nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAgentSession_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	rec := registry.Record{
		Key:        registry.Key{Provider: registry.ProviderClaude, ProviderSessionID: "abc"},
		Name:       "claude",
		Command:    "claude",
		Args:       []string{"--resume", "abc"},
		Cwd:        "/home/user/project",
		CwdSource:  registry.CwdSourceRuntime,
		CreatedAt:  time.Unix(1000, 0).UTC(),
		LastSeenAt: time.Unix(2000, 0).UTC(),
	}
	if err := s.UpsertAgentSession(rec); err != nil {
		t.Fatalf("UpsertAgentSession: %v", err)
	}

	got, err := s.ListAgentSessions()
	if err != nil {
		t.Fatalf("ListAgentSessions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Cwd != rec.Cwd || got[0].Key != rec.Key {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
	if len(got[0].Args) != 2 || got[0].Args[1] != "abc" {
		t.Fatalf("args not round-tripped: %+v", got[0].Args)
	}
}

func TestUpsertAgentSession_ConflictUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	key := registry.Key{Provider: registry.ProviderCodex, ProviderSessionID: "x"}

	if err := s.UpsertAgentSession(registry.Record{
		Key: key, Cwd: "/a", CreatedAt: time.Unix(100, 0), LastSeenAt: time.Unix(100, 0),
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertAgentSession(registry.Record{
		Key: key, Cwd: "/b", CreatedAt: time.Unix(100, 0), LastSeenAt: time.Unix(200, 0),
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.ListAgentSessions()
	if err != nil {
		t.Fatalf("ListAgentSessions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected conflict to update in place, got %d rows", len(got))
	}
	if got[0].Cwd != "/b" {
		t.Fatalf("expected updated cwd /b, got %q", got[0].Cwd)
	}
}

func TestPreferences_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetPreference("launch", []byte(`{"tool":"claude"}`)); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	val, ok, err := s.GetPreference("launch")
	if err != nil || !ok {
		t.Fatalf("GetPreference: %v, ok=%v", err, ok)
	}
	if string(val) != `{"tool":"claude"}` {
		t.Fatalf("unexpected value: %s", val)
	}

	_, ok, err = s.GetPreference("missing")
	if err != nil {
		t.Fatalf("GetPreference missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to report ok=false")
	}
}

func TestPruneReadinessTrace(t *testing.T) {
	s := newTestStore(t)
	old := time.Unix(1000, 0)
	recent := time.Unix(100000, 0)
	if err := s.RecordReadinessTransition("pty-1", "busy", "marker", old); err != nil {
		t.Fatalf("record old: %v", err)
	}
	if err := s.RecordReadinessTransition("pty-1", "ready", "marker", recent); err != nil {
		t.Fatalf("record recent: %v", err)
	}
	if err := s.PruneReadinessTrace(time.Unix(50000, 0)); err != nil {
		t.Fatalf("prune: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM readiness_trace`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 surviving row, got %d", count)
	}
}
