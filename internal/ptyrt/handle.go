package ptyrt

import "io"

// handle is the minimal surface the manager needs from a concrete PTY
// backend. pty_unix.go backs it with creack/pty/v2; pty_windows.go backs
// it with conpty, so the manager itself never branches on GOOS.
type handle interface {
	io.ReadWriteCloser
	Resize(cols, rows uint16) error
	// Wait blocks until the child process exits and returns its exit code
	// and, where the platform supports it, the terminating signal name.
	Wait() (code int, signal string, err error)
}

// spawnRequest carries everything a backend needs to start a child process
// attached to a fresh pseudo-terminal.
type spawnRequest struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // merged process env + per-call overrides
	Cols    uint16
	Rows    uint16
}
