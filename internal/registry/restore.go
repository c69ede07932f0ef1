package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agmux/agmux-core/internal/gitwt"
	"github.com/agmux/agmux-core/internal/runtime"
	"github.com/agmux/agmux-core/internal/tmuxops"
)

// RestoreTarget is the restore protocol's target selector, spec §4.4.
type RestoreTarget string

const (
	TargetSameCwd     RestoreTarget = "same_cwd"
	TargetWorktree    RestoreTarget = "worktree"
	TargetNewWorktree RestoreTarget = "new_worktree"
)

// RestoreRequest is the restore protocol's input, per spec §4.4.
type RestoreRequest struct {
	Key          Key
	Target       RestoreTarget
	Cwd          string // explicit cwd; wins over every other cwd source, for any target
	WorktreePath string // pre-existing worktree, only meaningful for worktree
	Branch       string // branch name for new_worktree
	RepoRoot     string // repo root new_worktree creates the worktree under
}

// RestoreResult is what a successful restore produced.
type RestoreResult struct {
	PtyID string
	Cwd   string
}

// resumeArgsFor builds the per-provider resume command arguments, per
// spec §4.4 step 4 (claude: --resume <id>, codex/pi: resume <id>) —
// generalized from buildRestartArgs's per-tool branch.
func resumeArgsFor(provider Provider, sessionID string) []string {
	switch provider {
	case ProviderClaude:
		return []string{"--resume", sessionID}
	case ProviderCodex, ProviderPi:
		return []string{"resume", sessionID}
	default:
		return nil
	}
}

// Restorer executes the restore protocol (spec §4.4) against a runtime
// manager and the registry's own store.
type Restorer struct {
	registry *Registry
	runtime  *runtime.Manager
	worktree *gitwt.Manager
}

func NewRestorer(reg *Registry, rt *runtime.Manager, wt *gitwt.Manager) *Restorer {
	return &Restorer{registry: reg, runtime: rt, worktree: wt}
}

// Restore runs the five-step protocol from spec §4.4.
func (r *Restorer) Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error) {
	existing, found, err := r.registry.FindAgentSessionSummary(req.Key)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("looking up agent session: %w", err)
	}

	// Step 1-2: validate target, create worktree if requested, choose cwd.
	cwd, cwdSource, err := r.resolveCwd(req, existing, found)
	if err != nil {
		return RestoreResult{}, err
	}

	// Step 3: ensure an agmux tmux session exists, new window, linked
	// session so the attachment doesn't steal an existing client, PTY
	// attach.
	ptyID := uuid.NewString()
	tmuxSessionName := "agmux_" + ptyID

	if !tmuxHasBootstrapSession(ctx) {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		if err := tmuxops.NewSessionDetached(ctx, tmuxops.ServerAgmux, bootstrapSessionName, cwd, shell, false); err != nil {
			return RestoreResult{}, fmt.Errorf("bootstrapping agmux tmux session: %w", err)
		}
	}

	window, err := tmuxops.CreateWindow(ctx, tmuxops.ServerAgmux, bootstrapSessionName, cwd, "")
	if err != nil {
		return RestoreResult{}, fmt.Errorf("creating tmux window: %w", err)
	}
	if err := tmuxops.CreateLinkedSession(ctx, tmuxops.ServerAgmux, tmuxSessionName, bootstrapSessionName); err != nil {
		_ = tmuxops.KillWindow(ctx, tmuxops.ServerAgmux, window)
		return RestoreResult{}, fmt.Errorf("creating linked tmux session: %w", err)
	}
	tmuxops.ApplySessionUIOptions(ctx, tmuxops.ServerAgmux, tmuxSessionName)

	summary, err := r.runtime.Spawn(ctx, runtime.StartRequest{
		ID:   ptyID,
		Name: string(req.Key.Provider) + ":" + req.Key.ProviderSessionID,
		Cwd:  cwd,
		Metadata: map[string]string{
			"tmuxSession": tmuxSessionName,
			"server":      string(tmuxops.ServerAgmux),
		},
	})
	if err != nil {
		return RestoreResult{}, fmt.Errorf("attaching restored pty: %w", err)
	}

	// Step 4: after a settle delay, write the resume command.
	args := resumeArgsFor(req.Key.Provider, req.Key.ProviderSessionID)
	resumeCmd := fmt.Sprintf("unset CLAUDECODE; %s %s\n", string(req.Key.Provider), shellJoin(args))
	go func() {
		time.Sleep(300 * time.Millisecond)
		r.runtime.Write(summary.ID, []byte(resumeCmd), runtime.BackendTmux)
	}()

	// Step 5: persist the upsert and the attachment mapping.
	now := time.Now()
	incoming := Record{
		Key:            req.Key,
		Cwd:            cwd,
		CwdSource:      cwdSource,
		LastSeenAt:     now,
		LastRestoredAt: &now,
	}
	if !found {
		incoming.CreatedAt = now
	}
	if err := r.registry.UpsertAgentSessionSummary(incoming); err != nil {
		return RestoreResult{}, fmt.Errorf("persisting restored agent session: %w", err)
	}
	r.registry.AttachPtyToAgentSession(ptyID, req.Key)

	return RestoreResult{PtyID: ptyID, Cwd: cwd}, nil
}

const bootstrapSessionName = "agmux_bootstrap"

// tmuxHasBootstrapSession locates the bootstrap session across both
// logical servers (it must live on agmux's own server; finding it on
// default would mean a name collision with a user session, which we
// treat as "not ours" and recreate on our own server).
func tmuxHasBootstrapSession(ctx context.Context) bool {
	server, found := tmuxops.LocateSession(ctx, bootstrapSessionName)
	return found && server == tmuxops.ServerAgmux
}

// resolveCwd implements step 1-2: validate target, create a worktree from
// HEAD on new_worktree, then pick the final cwd with priority explicit >
// worktree > registry > repo root.
func (r *Restorer) resolveCwd(req RestoreRequest, existing Record, found bool) (string, CwdSource, error) {
	switch req.Target {
	case TargetNewWorktree:
		if req.RepoRoot == "" || req.Branch == "" {
			return "", "", fmt.Errorf("new_worktree target requires repoRoot and branch")
		}
		path, err := r.worktree.Create(req.RepoRoot, req.Branch)
		if err != nil {
			return "", "", fmt.Errorf("creating worktree: %w", err)
		}
		if req.Cwd != "" {
			return req.Cwd, CwdSourceUser, nil
		}
		return path, CwdSourceUser, nil

	case TargetWorktree:
		if req.WorktreePath == "" {
			return "", "", fmt.Errorf("worktree target requires worktreePath")
		}
		if req.RepoRoot != "" {
			if err := r.worktree.ValidatePath(req.RepoRoot, req.WorktreePath); err != nil {
				return "", "", err
			}
		}
		if req.Cwd != "" {
			return req.Cwd, CwdSourceUser, nil
		}
		return req.WorktreePath, CwdSourceUser, nil

	case TargetSameCwd:
		if req.Cwd != "" {
			return req.Cwd, CwdSourceUser, nil
		}
		if found && existing.Cwd != "" {
			return existing.Cwd, existing.CwdSource, nil
		}
		if req.RepoRoot != "" {
			return req.RepoRoot, CwdSourceUser, nil
		}
		return "", "", fmt.Errorf("same_cwd target has no explicit cwd, registry cwd, or repo root to fall back to")

	default:
		return "", "", fmt.Errorf("unknown restore target %q", req.Target)
	}
}

func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
