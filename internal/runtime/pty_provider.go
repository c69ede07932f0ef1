package runtime

import (
	"context"

	"github.com/agmux/agmux-core/internal/ptyrt"
)

// ptyProvider backs a session directly with a child PTY — no tmux
// involved. This is the path for internal tools (spec calls these
// "userTools" sessions in the teacher's vocabulary; here, any provider
// request without a tmux server in its metadata).
type ptyProvider struct {
	mgr *ptyrt.Manager
}

func newPTYProvider(mgr *ptyrt.Manager) *ptyProvider {
	return &ptyProvider{mgr: mgr}
}

func (p *ptyProvider) Start(ctx context.Context, req StartRequest) (Summary, error) {
	s, err := p.mgr.Spawn(ctx, ptyrt.SpawnRequest{
		ID:       req.ID,
		Name:     req.Name,
		Command:  req.Command,
		Args:     req.Args,
		Cwd:      req.Cwd,
		Env:      req.Env,
		Cols:     req.Cols,
		Rows:     req.Rows,
		Metadata: req.Metadata,
	})
	if err != nil {
		return Summary{}, err
	}
	return Summary{Summary: s, Backend: BackendPTY}, nil
}

func (p *ptyProvider) Attach(ctx context.Context, id string) (chan []byte, []byte, bool) {
	return p.mgr.Subscribe(id)
}

func (p *ptyProvider) Detach(id string, ch chan []byte) {
	p.mgr.Unsubscribe(id, ch)
}

func (p *ptyProvider) Stop(id string) bool {
	return p.mgr.Kill(id)
}

func (p *ptyProvider) Send(id string, data []byte) {
	p.mgr.Write(id, data)
}

func (p *ptyProvider) Resize(id string, cols, rows uint16) {
	p.mgr.Resize(id, cols, rows)
}

func (p *ptyProvider) UpdateCwd(id, cwd string) {
	p.mgr.UpdateCwd(id, cwd)
}

func (p *ptyProvider) Status(ctx context.Context, id string) StatusSnapshot {
	s, ok := p.mgr.GetSummary(id)
	if !ok {
		return StatusSnapshot{State: StateError, Reason: "not_found"}
	}
	if s.Status == ptyrt.StatusExited {
		return StatusSnapshot{State: StateError, Reason: "exited"}
	}
	return StatusSnapshot{State: StateBusy}
}

func (p *ptyProvider) Summary(id string) (Summary, bool) {
	s, ok := p.mgr.GetSummary(id)
	if !ok {
		return Summary{}, false
	}
	return Summary{Summary: s, Backend: BackendPTY}, true
}

func (p *ptyProvider) List() []Summary {
	raw := p.mgr.List()
	out := make([]Summary, len(raw))
	for i, s := range raw {
		out[i] = Summary{Summary: s, Backend: BackendPTY}
	}
	return out
}

func (p *ptyProvider) Output() <-chan ptyrt.OutputEvent { return p.mgr.Output() }
func (p *ptyProvider) Exit() <-chan ptyrt.ExitEvent      { return p.mgr.Exit() }
