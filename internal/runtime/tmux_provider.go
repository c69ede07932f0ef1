package runtime

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/agmux/agmux-core/internal/ptyrt"
	"github.com/agmux/agmux-core/internal/tmuxops"
)

// tmuxProvider implements the runtime contract by spawning a local PTY
// that runs `tmux attach` against a detached tmux session, per spec §4.2:
// "so all output/input flow through the same PTY byte pipeline." Each
// session also gets a pipe-pane FIFO reader feeding the same manager via
// InjectOutput, so output isn't lost to tmux's screen-diff batching of
// the attach PTY's own read side.
type tmuxProvider struct {
	mgr *ptyrt.Manager

	mu    sync.Mutex
	pipes map[string]pipePane
}

type pipePane struct {
	server  tmuxops.Server
	session string
	f       *os.File
	path    string
}

func newTmuxProvider(mgr *ptyrt.Manager) *tmuxProvider {
	return &tmuxProvider{mgr: mgr, pipes: make(map[string]pipePane)}
}

// startPipePane is best-effort: if tmux's pipe-pane setup fails, the
// attach PTY's own output remains the only source for this session.
func (p *tmuxProvider) startPipePane(ctx context.Context, id string, server tmuxops.Server, session string) {
	f, path, err := tmuxops.StartPipePane(ctx, server, session)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.pipes[id] = pipePane{server: server, session: session, f: f, path: path}
	p.mu.Unlock()

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				p.mgr.InjectOutput(id, append([]byte(nil), buf[:n]...))
			}
			if err != nil {
				return
			}
		}
	}()
}

func (p *tmuxProvider) stopPipePane(ctx context.Context, id string) {
	p.mu.Lock()
	pp, ok := p.pipes[id]
	if ok {
		delete(p.pipes, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	tmuxops.CleanupPipePane(ctx, pp.server, pp.session, pp.f, pp.path)
}

func tmuxServerOf(req StartRequest) tmuxops.Server {
	if req.Metadata != nil && req.Metadata["server"] == string(tmuxops.ServerDefault) {
		return tmuxops.ServerDefault
	}
	return tmuxops.ServerAgmux
}

func sessionNameOf(req StartRequest) string {
	if req.Metadata != nil && req.Metadata["tmuxSession"] != "" {
		return req.Metadata["tmuxSession"]
	}
	return "agmux_" + req.ID
}

func (p *tmuxProvider) Start(ctx context.Context, req StartRequest) (Summary, error) {
	server := tmuxServerOf(req)
	name := sessionNameOf(req)

	if !tmuxops.HasSession(ctx, server, name) {
		shellCmd := req.Command
		for _, a := range req.Args {
			shellCmd += " " + a
		}
		if err := tmuxops.NewSessionDetached(ctx, server, name, req.Cwd, shellCmd, false); err != nil {
			return Summary{}, fmt.Errorf("tmux provider start: %w", err)
		}
	}

	cmd, args := tmuxops.AttachCommand(server, name)
	s, err := p.mgr.Spawn(ctx, ptyrt.SpawnRequest{
		ID:       req.ID,
		Name:     req.Name,
		Command:  cmd,
		Args:     args,
		Cwd:      req.Cwd,
		Cols:     req.Cols,
		Rows:     req.Rows,
		Metadata: req.Metadata,
	})
	if err != nil {
		return Summary{}, err
	}
	p.startPipePane(ctx, req.ID, server, name)
	return Summary{Summary: s, Backend: BackendTmux, TmuxSession: name, TmuxServer: string(server)}, nil
}

func (p *tmuxProvider) Attach(ctx context.Context, id string) (chan []byte, []byte, bool) {
	return p.mgr.Subscribe(id)
}

func (p *tmuxProvider) Detach(id string, ch chan []byte) {
	p.mgr.Unsubscribe(id, ch)
}

func (p *tmuxProvider) Stop(id string) bool {
	p.stopPipePane(context.Background(), id)
	return p.mgr.Kill(id)
}

func (p *tmuxProvider) Send(id string, data []byte) {
	p.mgr.Write(id, data)
}

func (p *tmuxProvider) Resize(id string, cols, rows uint16) {
	p.mgr.Resize(id, cols, rows)
}

func (p *tmuxProvider) UpdateCwd(id, cwd string) {
	p.mgr.UpdateCwd(id, cwd)
}

// Status distinguishes ready (pane foreground looks like an idle shell)
// from busy; if the attach process has died, reports {error, exited}.
func (p *tmuxProvider) Status(ctx context.Context, id string) StatusSnapshot {
	s, ok := p.mgr.GetSummary(id)
	if !ok {
		return StatusSnapshot{State: StateError, Reason: "not_found"}
	}
	if s.Status == ptyrt.StatusExited {
		return StatusSnapshot{State: StateError, Reason: "exited"}
	}
	tmuxSession := s.Metadata["tmuxSession"]
	if tmuxSession == "" {
		tmuxSession = "agmux_" + id
	}
	server := tmuxops.ServerAgmux
	if s.Metadata["server"] == string(tmuxops.ServerDefault) {
		server = tmuxops.ServerDefault
	}

	dead, _, err := tmuxops.PaneDead(ctx, server, tmuxSession)
	if err == nil && dead {
		return StatusSnapshot{State: StateError, Reason: "exited"}
	}
	proc, err := tmuxops.PaneActiveProcess(ctx, server, tmuxSession)
	if err != nil {
		return StatusSnapshot{State: StateBusy}
	}
	if shellProcessRe.MatchString(proc) {
		return StatusSnapshot{State: StateReady}
	}
	return StatusSnapshot{State: StateBusy}
}

func (p *tmuxProvider) Summary(id string) (Summary, bool) {
	s, ok := p.mgr.GetSummary(id)
	if !ok {
		return Summary{}, false
	}
	return Summary{
		Summary:     s,
		Backend:     BackendTmux,
		TmuxSession: s.Metadata["tmuxSession"],
		TmuxServer:  s.Metadata["server"],
	}, true
}

func (p *tmuxProvider) List() []Summary {
	raw := p.mgr.List()
	out := make([]Summary, len(raw))
	for i, s := range raw {
		out[i] = Summary{
			Summary:     s,
			Backend:     BackendTmux,
			TmuxSession: s.Metadata["tmuxSession"],
			TmuxServer:  s.Metadata["server"],
		}
	}
	return out
}

func (p *tmuxProvider) Output() <-chan ptyrt.OutputEvent { return p.mgr.Output() }
func (p *tmuxProvider) Exit() <-chan ptyrt.ExitEvent      { return p.mgr.Exit() }
