package runtime

import (
	"context"
	"log/slog"

	"github.com/agmux/agmux-core/internal/ptyrt"
)

// Manager dispatches spawn requests to the pty or tmux provider depending
// on whether the request's metadata names a tmux session/server, and
// presents a single merged view of both backends — mirroring the
// teacher's userTools/internalTools branch in Manager.Create, generalized
// into the two Provider implementations (ptyProvider, tmuxProvider)
// instead of an inline branch.
type Manager struct {
	pty  *ptyProvider
	tmux *tmuxProvider

	out  chan ptyrt.OutputEvent
	exit chan ptyrt.ExitEvent
}

func NewManager(logger *slog.Logger) *Manager {
	ptyMgr := ptyrt.NewManager(logger)
	tmuxMgr := ptyrt.NewManager(logger)
	m := &Manager{
		pty:  newPTYProvider(ptyMgr),
		tmux: newTmuxProvider(tmuxMgr),
		out:  make(chan ptyrt.OutputEvent, 256),
		exit: make(chan ptyrt.ExitEvent, 64),
	}
	go m.fanIn(ptyMgr.Output(), ptyMgr.Exit())
	go m.fanIn(tmuxMgr.Output(), tmuxMgr.Exit())
	return m
}

func (m *Manager) fanIn(out <-chan ptyrt.OutputEvent, exit <-chan ptyrt.ExitEvent) {
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return
			}
			select {
			case m.out <- ev:
			default:
			}
		case ev, ok := <-exit:
			if !ok {
				return
			}
			select {
			case m.exit <- ev:
			default:
			}
		}
	}
}

func (m *Manager) Output() <-chan ptyrt.OutputEvent { return m.out }
func (m *Manager) Exit() <-chan ptyrt.ExitEvent      { return m.exit }

// wantsTmux reports whether a StartRequest should be backed by tmux,
// signaled by the presence of a tmuxSession or server metadata key.
func wantsTmux(req StartRequest) bool {
	if req.Metadata == nil {
		return false
	}
	_, hasSession := req.Metadata["tmuxSession"]
	_, hasServer := req.Metadata["server"]
	return hasSession || hasServer
}

func (m *Manager) providerFor(req StartRequest) Provider {
	if wantsTmux(req) {
		return m.tmux
	}
	return m.pty
}

func (m *Manager) providerByBackend(backend Backend) Provider {
	if backend == BackendTmux {
		return m.tmux
	}
	return m.pty
}

func (m *Manager) Spawn(ctx context.Context, req StartRequest) (Summary, error) {
	return m.providerFor(req).Start(ctx, req)
}

func (m *Manager) Subscribe(id string) (chan []byte, []byte, bool, Backend) {
	if ch, backlog, ok := m.pty.Attach(context.Background(), id); ok {
		return ch, backlog, ok, BackendPTY
	}
	ch, backlog, ok := m.tmux.Attach(context.Background(), id)
	return ch, backlog, ok, BackendTmux
}

func (m *Manager) Unsubscribe(id string, ch chan []byte, backend Backend) {
	m.providerByBackend(backend).Detach(id, ch)
}

func (m *Manager) Write(id string, data []byte, backend Backend) {
	m.providerByBackend(backend).Send(id, data)
}

func (m *Manager) Resize(id string, cols, rows uint16, backend Backend) {
	m.providerByBackend(backend).Resize(id, cols, rows)
}

func (m *Manager) Kill(id string, backend Backend) bool {
	return m.providerByBackend(backend).Stop(id)
}

// UpdateCwd records an observed runtime cwd against the session's own
// backend, separate from the registry's durable CwdSourceRuntime record.
func (m *Manager) UpdateCwd(id string, cwd string, backend Backend) {
	m.providerByBackend(backend).UpdateCwd(id, cwd)
}

func (m *Manager) Status(ctx context.Context, id string, backend Backend) StatusSnapshot {
	return m.providerByBackend(backend).Status(ctx, id)
}

func (m *Manager) GetSummary(id string) (Summary, bool) {
	if s, ok := m.pty.Summary(id); ok {
		return s, true
	}
	return m.tmux.Summary(id)
}

func (m *Manager) List() []Summary {
	out := append([]Summary(nil), m.pty.List()...)
	out = append(out, m.tmux.List()...)
	return out
}
