package registry

import (
	"testing"
	"time"
)

func ts(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

// TestUpsert_NullCwdNeverDisplaces covers the quantified invariant from
// spec §8: an incoming null cwd leaves the stored cwd untouched, and
// created_at/last_seen_at still take min/max respectively.
func TestUpsert_NullCwdNeverDisplaces(t *testing.T) {
	existing := Record{
		Key:        Key{Provider: ProviderCodex, ProviderSessionID: "sess-1"},
		Cwd:        "/a",
		CwdSource:  CwdSourceRuntime,
		CreatedAt:  ts(900),
		LastSeenAt: ts(2000),
	}
	incoming := Record{
		Key:        existing.Key,
		Cwd:        "",
		CwdSource:  CwdSourceLog,
		CreatedAt:  ts(1500),
		LastSeenAt: ts(3000),
	}
	got := Upsert(&existing, incoming)
	if got.Cwd != "/a" {
		t.Fatalf("cwd displaced: got %q", got.Cwd)
	}
	if got.CreatedAt != ts(900) {
		t.Fatalf("created_at not min: got %v", got.CreatedAt)
	}
	if got.LastSeenAt != ts(3000) {
		t.Fatalf("last_seen_at not max: got %v", got.LastSeenAt)
	}
}

// TestUpsert_MergePriority is spec §8 scenario 4.
func TestUpsert_MergePriority(t *testing.T) {
	key := Key{Provider: ProviderCodex, ProviderSessionID: "sess-1"}
	first := Upsert(nil, Record{
		Key:        key,
		Cwd:        "/a",
		CwdSource:  CwdSourceRuntime,
		CreatedAt:  ts(900),
		LastSeenAt: ts(2000),
	})
	second := Upsert(&first, Record{
		Key:        key,
		Cwd:        "",
		CwdSource:  CwdSourceLog,
		CreatedAt:  ts(2500),
		LastSeenAt: ts(3000),
	})
	if second.Cwd != "/a" || second.CwdSource != CwdSourceRuntime {
		t.Fatalf("expected cwd /a from runtime to survive, got %q/%s", second.Cwd, second.CwdSource)
	}
	if second.CreatedAt != ts(900) {
		t.Fatalf("expected created_at=900, got %v", second.CreatedAt)
	}
	if second.LastSeenAt != ts(3000) {
		t.Fatalf("expected last_seen_at=3000, got %v", second.LastSeenAt)
	}
}

// TestUpsert_EqualPriorityNewerWins checks the tie-break half of the cwd
// invariant: equal source rank, newer last_seen_at wins.
func TestUpsert_EqualPriorityNewerWins(t *testing.T) {
	existing := Record{
		Key:        Key{Provider: ProviderClaude, ProviderSessionID: "s"},
		Cwd:        "/old",
		CwdSource:  CwdSourceDB,
		LastSeenAt: ts(100),
	}
	incoming := Record{
		Key:        existing.Key,
		Cwd:        "/new",
		CwdSource:  CwdSourceDB,
		LastSeenAt: ts(200),
	}
	got := Upsert(&existing, incoming)
	if got.Cwd != "/new" {
		t.Fatalf("expected newer equal-priority cwd to win, got %q", got.Cwd)
	}
}

// TestUpsert_HigherPriorityStaleLoses verifies a lower-priority but newer
// source does NOT override a higher-priority source (strict priority
// before recency).
func TestUpsert_HigherPriorityStaleLoses(t *testing.T) {
	existing := Record{
		Key:        Key{Provider: ProviderClaude, ProviderSessionID: "s"},
		Cwd:        "/user-chosen",
		CwdSource:  CwdSourceUser,
		LastSeenAt: ts(100),
	}
	incoming := Record{
		Key:        existing.Key,
		Cwd:        "/runtime-observed",
		CwdSource:  CwdSourceRuntime,
		LastSeenAt: ts(99999),
	}
	got := Upsert(&existing, incoming)
	if got.Cwd != "/user-chosen" {
		t.Fatalf("expected user cwd to outrank newer runtime cwd, got %q", got.Cwd)
	}
}

type fakeStore struct {
	agentSessions []Record
	legacy        []Record
}

func (f *fakeStore) ListAgentSessions() ([]Record, error)        { return f.agentSessions, nil }
func (f *fakeStore) UpsertAgentSession(r Record) error {
	for i, existing := range f.agentSessions {
		if existing.Key == r.Key {
			f.agentSessions[i] = r
			return nil
		}
	}
	f.agentSessions = append(f.agentSessions, r)
	return nil
}
func (f *fakeStore) ListLegacyLogSessionRefs() ([]Record, error) { return f.legacy, nil }

type fakeDiscoverer struct{}

func (fakeDiscoverer) Discover(Provider) ([]Record, error) { return nil, nil }

// TestListAgentSessions_Ordering is spec §8 scenario 5.
func TestListAgentSessions_Ordering(t *testing.T) {
	store := &fakeStore{
		agentSessions: []Record{
			{Key: Key{Provider: ProviderClaude, ProviderSessionID: "a"}, LastSeenAt: ts(5000)},
			{Key: Key{Provider: ProviderCodex, ProviderSessionID: "b"}, LastSeenAt: ts(7000)},
		},
	}
	reg := New(store, fakeDiscoverer{})
	list, err := reg.ListAgentSessions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].Key.Provider != ProviderCodex || list[0].ProviderSessionID != "b" {
		t.Fatalf("expected codex:b first, got %+v", list[0].Key)
	}
	if list[1].Key.Provider != ProviderClaude || list[1].ProviderSessionID != "a" {
		t.Fatalf("expected claude:a second, got %+v", list[1].Key)
	}
}
