//go:build windows

package ptyrt

import (
	"fmt"
	"strings"

	"github.com/UserExistsError/conpty"
)

// windowsHandle backs a spawned child with a Windows ConPTY, the backend
// the module's dependency surface carries alongside creack/pty/v2 for the
// POSIX side. The two backends satisfy the same handle interface so the
// manager never branches on platform.
type windowsHandle struct {
	cpty *conpty.ConPty
}

func spawn(req spawnRequest) (handle, error) {
	cmdLine := req.Command
	if len(req.Args) > 0 {
		cmdLine = cmdLine + " " + strings.Join(req.Args, " ")
	}
	cpty, err := conpty.Start(
		cmdLine,
		conpty.ConPtyDimensions(int(req.Cols), int(req.Rows)),
		conpty.ConPtyWorkDir(req.Dir),
		conpty.ConPtyEnv(req.Env),
	)
	if err != nil {
		return nil, fmt.Errorf("starting conpty: %w", err)
	}
	return &windowsHandle{cpty: cpty}, nil
}

func (h *windowsHandle) Read(p []byte) (int, error)  { return h.cpty.Read(p) }
func (h *windowsHandle) Write(p []byte) (int, error) { return h.cpty.Write(p) }
func (h *windowsHandle) Close() error                { return h.cpty.Close() }

func (h *windowsHandle) Resize(cols, rows uint16) error {
	return h.cpty.Resize(int(cols), int(rows))
}

func (h *windowsHandle) Wait() (int, string, error) {
	code, err := h.cpty.Wait(nil)
	if err != nil {
		return -1, "", err
	}
	return int(code), "", nil
}
