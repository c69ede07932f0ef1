// Package registry implements the durable agent-session identity map:
// (provider, provider_session_id) → {name, command, args, cwd, cwd_source,
// timestamps}, merged across runtime, durable-store, and log-discovered
// sources with a documented precedence (spec §4.4).
package registry

import "time"

type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderCodex  Provider = "codex"
	ProviderPi     Provider = "pi"
)

// CwdSource is the provenance of a session's cwd, ordered log < db <
// runtime < user per spec §3.
type CwdSource string

const (
	CwdSourceLog     CwdSource = "log"
	CwdSourceDB      CwdSource = "db"
	CwdSourceRuntime CwdSource = "runtime"
	CwdSourceUser    CwdSource = "user"
)

var cwdSourcePriority = map[CwdSource]int{
	CwdSourceLog:     0,
	CwdSourceDB:      1,
	CwdSourceRuntime: 2,
	CwdSourceUser:    3,
}

// Key identifies an agent session, per spec §3's "(provider,
// provider_session_id)" primary key.
type Key struct {
	Provider         Provider
	ProviderSessionID string
}

// Record is spec §3's AgentSessionRecord.
type Record struct {
	Key
	Name           string
	Command        string
	Args           []string
	Cwd            string
	CwdSource      CwdSource
	CreatedAt      time.Time
	LastSeenAt     time.Time
	LastRestoredAt *time.Time
}

// Upsert applies spec §3's invariant: the incoming record's cwd only
// overwrites the stored one if the incoming source strictly outranks the
// stored source, or they tie and the incoming last_seen_at is newer; a
// nil/empty incoming cwd never displaces a present one. created_at takes
// the min across both, last_seen_at the max.
func Upsert(existing *Record, incoming Record) Record {
	if existing == nil {
		return incoming
	}

	out := *existing

	if incoming.Cwd != "" {
		incomingRank := cwdSourcePriority[incoming.CwdSource]
		existingRank := cwdSourcePriority[existing.CwdSource]
		if incomingRank > existingRank {
			out.Cwd = incoming.Cwd
			out.CwdSource = incoming.CwdSource
		} else if incomingRank == existingRank && incoming.LastSeenAt.After(existing.LastSeenAt) {
			out.Cwd = incoming.Cwd
			out.CwdSource = incoming.CwdSource
		}
	}

	if existing.CreatedAt.IsZero() || (!incoming.CreatedAt.IsZero() && incoming.CreatedAt.Before(existing.CreatedAt)) {
		out.CreatedAt = incoming.CreatedAt
	}
	if incoming.LastSeenAt.After(existing.LastSeenAt) {
		out.LastSeenAt = incoming.LastSeenAt
	}

	if incoming.LastRestoredAt != nil {
		if existing.LastRestoredAt == nil || incoming.LastRestoredAt.After(*existing.LastRestoredAt) {
			out.LastRestoredAt = incoming.LastRestoredAt
		}
	}

	// name/command/args come from whichever contributor has the newer
	// last_seen_at (spec §4.4's merge rule for the "listing" path; the
	// same rule applies to a direct two-record upsert).
	if incoming.LastSeenAt.After(existing.LastSeenAt) || existing.Name == "" {
		if incoming.Name != "" {
			out.Name = incoming.Name
		}
		if incoming.Command != "" {
			out.Command = incoming.Command
		}
		if len(incoming.Args) > 0 {
			out.Args = incoming.Args
		}
	}

	return out
}
