// Package runtime implements the uniform provider contract spec §2 calls
// out ("start/attach/stop/send/resize/output/status over PTY or tmux"),
// backed by internal/ptyrt for the byte pipeline and internal/tmuxops for
// the tmux-backed variant.
package runtime

import (
	"context"
	"regexp"

	"github.com/agmux/agmux-core/internal/ptyrt"
)

// Backend mirrors spec §3's PtySummary.backend domain.
type Backend string

const (
	BackendPTY  Backend = "pty"
	BackendTmux Backend = "tmux"
)

// SessionState is the coarse liveness/readiness classification the tmux
// provider's status() reports, per spec §4.2.
type SessionState string

const (
	StateReady SessionState = "ready"
	StateBusy  SessionState = "busy"
	StateError SessionState = "error"
)

// StatusSnapshot is the provider-level status(id) result.
type StatusSnapshot struct {
	State  SessionState
	Reason string // set when State == StateError, e.g. "exited"
}

// shellProcessRe matches common interactive shells, used by the tmux
// provider to decide whether the pane's foreground process looks like an
// idle shell prompt (ready) versus a running tool (busy).
var shellProcessRe = regexp.MustCompile(`^(sh|bash|zsh|fish|dash|ksh|tcsh|csh|nu)$`)

// StartRequest is the provider-agnostic spawn request. Metadata carries
// the enumerated string keys spec §9 calls out (tmuxSession, server).
type StartRequest struct {
	ID       string
	Name     string
	Command  string
	Args     []string
	Cwd      string
	Env      map[string]string
	Cols     uint16
	Rows     uint16
	Metadata map[string]string
}

// Summary is the runtime-level view of spec §3's PtySummary, now carrying
// the backend-specific fields ptyrt.Summary doesn't know about.
type Summary struct {
	ptyrt.Summary
	Backend     Backend
	TmuxSession string
	TmuxServer  string
}

// Provider is the uniform contract both backends satisfy.
type Provider interface {
	Start(ctx context.Context, req StartRequest) (Summary, error)
	Attach(ctx context.Context, id string) (chan []byte, []byte, bool)
	Detach(id string, ch chan []byte)
	Stop(id string) bool
	Send(id string, data []byte)
	Resize(id string, cols, rows uint16)
	UpdateCwd(id, cwd string)
	Status(ctx context.Context, id string) StatusSnapshot
	Summary(id string) (Summary, bool)
	List() []Summary
	Output() <-chan ptyrt.OutputEvent
	Exit() <-chan ptyrt.ExitEvent
}
