package store

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY, name TEXT, command TEXT, args_json TEXT,
  cwd TEXT, created_at INTEGER NOT NULL, last_seen_at INTEGER NOT NULL,
  status TEXT NOT NULL, exit_code INTEGER, exit_signal TEXT,
  backend TEXT, tmux_session TEXT
);
CREATE TABLE IF NOT EXISTS agent_sessions (
  provider TEXT NOT NULL, provider_session_id TEXT NOT NULL,
  name TEXT, command TEXT, args_json TEXT, cwd TEXT, cwd_source TEXT,
  created_at INTEGER NOT NULL, last_seen_at INTEGER NOT NULL,
  last_restored_at INTEGER,
  PRIMARY KEY (provider, provider_session_id)
);
CREATE TABLE IF NOT EXISTS preferences (
  key TEXT PRIMARY KEY, value_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS readiness_trace (
  id INTEGER PRIMARY KEY AUTOINCREMENT, pty_id TEXT NOT NULL,
  state TEXT NOT NULL, detected_at INTEGER NOT NULL, source TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readiness_trace_pty ON readiness_trace(pty_id);
`

// legacyLogRefPrefix marks a sessions.id as a reference into a provider's
// log-discovered conversation rather than a live PTY, per spec §4.4's
// "legacy sessions rows whose id matches log:(claude|codex|pi):<id>".
const legacyLogRefPrefix = "log:"
