// Package store is the durable SQLite-backed persistence layer spec §6
// names but leaves engine-unspecified. Uses modernc.org/sqlite (pure Go,
// no cgo) the way StrongheartedX-markdown-themes's db package uses
// mattn/go-sqlite3, with the same WAL-journaled single-writer setup.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agmux/agmux-core/internal/registry"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (if needed) and opens the database at $XDG_DATA_HOME/agmux/
// agmux.db, falling back to ~/.local/share/agmux/agmux.db, and applies the
// schema idempotently.
func Open(logger *slog.Logger) (*Store, error) {
	path := dbPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func dbPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "agmux", "agmux.db")
}

// ListAgentSessions satisfies registry.Store.
func (s *Store) ListAgentSessions() ([]registry.Record, error) {
	rows, err := s.db.Query(`
		SELECT provider, provider_session_id, name, command, args_json, cwd,
		       cwd_source, created_at, last_seen_at, last_restored_at
		FROM agent_sessions`)
	if err != nil {
		return nil, fmt.Errorf("querying agent_sessions: %w", err)
	}
	defer rows.Close()

	var out []registry.Record
	for rows.Next() {
		rec, err := scanAgentSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentSession(row rowScanner) (registry.Record, error) {
	var rec registry.Record
	var provider, argsJSON string
	var createdAt, lastSeenAt int64
	var lastRestoredAt sql.NullInt64

	if err := row.Scan(&provider, &rec.ProviderSessionID, &rec.Name, &rec.Command,
		&argsJSON, &rec.Cwd, &rec.CwdSource, &createdAt, &lastSeenAt, &lastRestoredAt); err != nil {
		return registry.Record{}, fmt.Errorf("scanning agent_sessions row: %w", err)
	}

	rec.Provider = registry.Provider(provider)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.LastSeenAt = time.Unix(lastSeenAt, 0).UTC()
	if lastRestoredAt.Valid {
		t := time.Unix(lastRestoredAt.Int64, 0).UTC()
		rec.LastRestoredAt = &t
	}
	if argsJSON != "" {
		_ = json.Unmarshal([]byte(argsJSON), &rec.Args)
	}
	return rec, nil
}

// UpsertAgentSession satisfies registry.Store.
func (s *Store) UpsertAgentSession(rec registry.Record) error {
	argsJSON, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("marshaling args: %w", err)
	}

	var lastRestoredAt any
	if rec.LastRestoredAt != nil {
		lastRestoredAt = rec.LastRestoredAt.Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO agent_sessions
			(provider, provider_session_id, name, command, args_json, cwd,
			 cwd_source, created_at, last_seen_at, last_restored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, provider_session_id) DO UPDATE SET
			name = excluded.name,
			command = excluded.command,
			args_json = excluded.args_json,
			cwd = excluded.cwd,
			cwd_source = excluded.cwd_source,
			created_at = excluded.created_at,
			last_seen_at = excluded.last_seen_at,
			last_restored_at = excluded.last_restored_at`,
		string(rec.Provider), rec.ProviderSessionID, rec.Name, rec.Command, string(argsJSON),
		rec.Cwd, string(rec.CwdSource), rec.CreatedAt.Unix(), rec.LastSeenAt.Unix(), lastRestoredAt)
	if err != nil {
		return fmt.Errorf("upserting agent_sessions row: %w", err)
	}
	return nil
}

// ListLegacyLogSessionRefs satisfies registry.Store: rows in the plain
// sessions table whose id encodes "log:<provider>:<id>", a holdover
// reference format from before agent_sessions existed (spec §4.4).
func (s *Store) ListLegacyLogSessionRefs() ([]registry.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, name, command, cwd, created_at, last_seen_at
		FROM sessions WHERE id LIKE 'log:%'`)
	if err != nil {
		return nil, fmt.Errorf("querying legacy log session refs: %w", err)
	}
	defer rows.Close()

	var out []registry.Record
	for rows.Next() {
		var id, name, command, cwd string
		var createdAt, lastSeenAt int64
		if err := rows.Scan(&id, &name, &command, &cwd, &createdAt, &lastSeenAt); err != nil {
			return nil, fmt.Errorf("scanning legacy session row: %w", err)
		}
		parts := strings.SplitN(strings.TrimPrefix(id, legacyLogRefPrefix), ":", 2)
		if len(parts) != 2 {
			continue
		}
		out = append(out, registry.Record{
			Key:        registry.Key{Provider: registry.Provider(parts[0]), ProviderSessionID: parts[1]},
			Name:       name,
			Command:    command,
			Cwd:        cwd,
			CreatedAt:  time.Unix(createdAt, 0).UTC(),
			LastSeenAt: time.Unix(lastSeenAt, 0).UTC(),
		})
	}
	return out, rows.Err()
}

// PtyRow is the sessions-table view of a PtySummary, persisted so a
// restarted process can still show recently-exited sessions (spec §4.5).
type PtyRow struct {
	ID          string
	Name        string
	Command     string
	Args        []string
	Cwd         string
	CreatedAt   time.Time
	LastSeenAt  time.Time
	Status      string
	ExitCode    *int
	ExitSignal  string
	Backend     string
	TmuxSession string
}

// UpsertSession persists one PtySummary row.
func (s *Store) UpsertSession(row PtyRow) error {
	argsJSON, err := json.Marshal(row.Args)
	if err != nil {
		return fmt.Errorf("marshaling args: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions
			(id, name, command, args_json, cwd, created_at, last_seen_at,
			 status, exit_code, exit_signal, backend, tmux_session)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, command = excluded.command,
			args_json = excluded.args_json, cwd = excluded.cwd,
			last_seen_at = excluded.last_seen_at, status = excluded.status,
			exit_code = excluded.exit_code, exit_signal = excluded.exit_signal,
			backend = excluded.backend, tmux_session = excluded.tmux_session`,
		row.ID, row.Name, row.Command, string(argsJSON), row.Cwd,
		row.CreatedAt.Unix(), row.LastSeenAt.Unix(), row.Status,
		row.ExitCode, row.ExitSignal, row.Backend, row.TmuxSession)
	if err != nil {
		return fmt.Errorf("upserting sessions row: %w", err)
	}
	return nil
}

// ListPersistedSessions returns every row in the plain sessions table,
// the "persisted" half of the session-list merge in spec §4.5. Rows
// whose id looks like a legacy log reference are excluded — those
// belong to the agent-session registry, not the PTY session list.
func (s *Store) ListPersistedSessions() ([]PtyRow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, command, args_json, cwd, created_at, last_seen_at,
		       status, exit_code, exit_signal, backend, tmux_session
		FROM sessions WHERE id NOT LIKE 'log:%'`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []PtyRow
	for rows.Next() {
		var row PtyRow
		var argsJSON string
		var createdAt, lastSeenAt int64
		var exitCode sql.NullInt64
		var exitSignal, backend, tmuxSession sql.NullString
		if err := rows.Scan(&row.ID, &row.Name, &row.Command, &argsJSON, &row.Cwd,
			&createdAt, &lastSeenAt, &row.Status, &exitCode, &exitSignal,
			&backend, &tmuxSession); err != nil {
			return nil, fmt.Errorf("scanning sessions row: %w", err)
		}
		row.CreatedAt = time.Unix(createdAt, 0).UTC()
		row.LastSeenAt = time.Unix(lastSeenAt, 0).UTC()
		if exitCode.Valid {
			c := int(exitCode.Int64)
			row.ExitCode = &c
		}
		row.ExitSignal = exitSignal.String
		row.Backend = backend.String
		row.TmuxSession = tmuxSession.String
		if argsJSON != "" {
			_ = json.Unmarshal([]byte(argsJSON), &row.Args)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetPreference and SetPreference host the preferences table's launch/
// settings/taskProvider keys (spec §6).
func (s *Store) GetPreference(key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value_json FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying preference %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

func (s *Store) SetPreference(key string, value json.RawMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("setting preference %q: %w", key, err)
	}
	return nil
}

// RecordReadinessTransition appends a readiness_trace row, used for
// debugging/auditing the readiness engine's output over time.
func (s *Store) RecordReadinessTransition(ptyID, state, source string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO readiness_trace (pty_id, state, detected_at, source)
		VALUES (?, ?, ?, ?)`, ptyID, state, at.Unix(), source)
	if err != nil {
		return fmt.Errorf("recording readiness transition: %w", err)
	}
	return nil
}

// PruneReadinessTrace deletes trace rows older than olderThan, the
// maintenance scheduler's hourly job (SPEC_FULL.md §6).
func (s *Store) PruneReadinessTrace(olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM readiness_trace WHERE detected_at < ?`, olderThan.Unix())
	if err != nil {
		return fmt.Errorf("pruning readiness_trace: %w", err)
	}
	return nil
}
