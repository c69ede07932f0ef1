package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the durable-store surface the registry needs: the
// agent_sessions table plus the legacy sessions rows whose id encodes a
// provider log reference (id = "log:<provider>:<id>"), per spec §4.4.
type Store interface {
	ListAgentSessions() ([]Record, error)
	UpsertAgentSession(Record) error
	ListLegacyLogSessionRefs() ([]Record, error)
}

// LogDiscoverer scans a provider's canonical log locations for candidate
// sessions, per spec §6's "Log-session discovery".
type LogDiscoverer interface {
	Discover(provider Provider) ([]Record, error)
}

// Registry merges the three sources spec §4.4 names into one listing and
// tracks which PTY is currently attached to which agent session.
type Registry struct {
	mu          sync.Mutex
	store       Store
	discoverer  LogDiscoverer
	attachments map[string]Key // ptyId -> agent session key
}

func New(store Store, discoverer LogDiscoverer) *Registry {
	return &Registry{
		store:       store,
		discoverer:  discoverer,
		attachments: make(map[string]Key),
	}
}

// ListAgentSessions merges db rows, legacy log-reference rows, and
// filesystem-discovered candidates, folds entries sharing a key via
// Upsert, and sorts by last_seen_at descending (spec §4.4).
func (r *Registry) ListAgentSessions() ([]Record, error) {
	merged := make(map[Key]Record)

	dbRows, err := r.store.ListAgentSessions()
	if err != nil {
		return nil, fmt.Errorf("listing agent_sessions: %w", err)
	}
	for _, rec := range dbRows {
		fold(merged, rec)
	}

	legacy, err := r.store.ListLegacyLogSessionRefs()
	if err != nil {
		return nil, fmt.Errorf("listing legacy log session refs: %w", err)
	}
	for _, rec := range legacy {
		rec.CwdSource = CwdSourceDB
		fold(merged, rec)
	}

	if r.discoverer != nil {
		for _, provider := range []Provider{ProviderClaude, ProviderCodex, ProviderPi} {
			candidates, err := r.discoverer.Discover(provider)
			if err != nil {
				// Log-file discovery degrades gracefully to an empty list
				// on unreadable files, per spec §9's open question.
				continue
			}
			for _, rec := range candidates {
				rec.CwdSource = CwdSourceLog
				fold(merged, rec)
			}
		}
	}

	out := make([]Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func fold(merged map[Key]Record, rec Record) {
	if existing, ok := merged[rec.Key]; ok {
		e := existing
		merged[rec.Key] = Upsert(&e, rec)
		return
	}
	merged[rec.Key] = rec
}

func (r *Registry) FindAgentSessionSummary(key Key) (Record, bool, error) {
	all, err := r.ListAgentSessions()
	if err != nil {
		return Record{}, false, err
	}
	for _, rec := range all {
		if rec.Key == key {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// UpsertAgentSessionSummary folds an incoming record into the stored one
// and persists the result.
func (r *Registry) UpsertAgentSessionSummary(incoming Record) error {
	existing, found, err := r.storeLookup(incoming.Key)
	if err != nil {
		return err
	}
	var merged Record
	if found {
		merged = Upsert(&existing, incoming)
	} else {
		merged = incoming
	}
	return r.store.UpsertAgentSession(merged)
}

func (r *Registry) storeLookup(key Key) (Record, bool, error) {
	rows, err := r.store.ListAgentSessions()
	if err != nil {
		return Record{}, false, err
	}
	for _, rec := range rows {
		if rec.Key == key {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// PersistRuntimeCwdForAgentPty records an observed cwd for whichever
// agent session is currently attached to ptyId, sourced as "runtime".
func (r *Registry) PersistRuntimeCwdForAgentPty(ptyId, cwd string, ts time.Time) error {
	r.mu.Lock()
	key, ok := r.attachments[ptyId]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.UpsertAgentSessionSummary(Record{
		Key:        key,
		Cwd:        cwd,
		CwdSource:  CwdSourceRuntime,
		LastSeenAt: ts,
	})
}

// AttachPtyToAgentSession records which agent session a live PTY backs,
// used by restore and by runtime cwd observation.
func (r *Registry) AttachPtyToAgentSession(ptyId string, key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments[ptyId] = key
}

func (r *Registry) DetachPty(ptyId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attachments, ptyId)
}
