//go:build !windows

package ptyrt

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty/v2"
)

type unixHandle struct {
	f   *os.File
	cmd *exec.Cmd
}

func spawn(req spawnRequest) (handle, error) {
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: req.Rows,
		Cols: req.Cols,
	})
	if err != nil {
		return nil, fmt.Errorf("starting pty: %w", err)
	}
	return &unixHandle{f: f, cmd: cmd}, nil
}

func (h *unixHandle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *unixHandle) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *unixHandle) Close() error                { return h.f.Close() }

func (h *unixHandle) Resize(cols, rows uint16) error {
	return pty.Setsize(h.f, &pty.Winsize{Rows: rows, Cols: cols})
}

func (h *unixHandle) Wait() (int, string, error) {
	err := h.cmd.Wait()
	if err == nil {
		return 0, "", nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal()), status.Signal().String(), nil
			}
			return status.ExitStatus(), "", nil
		}
		return exitErr.ExitCode(), "", nil
	}
	return -1, "", err
}
