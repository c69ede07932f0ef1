// Package maintenance runs the four periodic jobs SPEC_FULL.md's
// durable-store section names (log-discovery refresh, tmux pane poll,
// orphaned-tmux sweep, readiness-trace pruning), via
// github.com/robfig/cron/v3 (listed in the teacher's go.mod, unused in the
// retrieved file subset).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agmux/agmux-core/internal/readiness"
	"github.com/agmux/agmux-core/internal/registry"
	"github.com/agmux/agmux-core/internal/runtime"
	"github.com/agmux/agmux-core/internal/store"
	"github.com/agmux/agmux-core/internal/tmuxops"
)

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// knownTmuxSessions reports which agmux_* tmux session names are
// currently tracked as live, so the orphan sweep can tell a tracked
// session apart from a leftover one.
type knownTmuxSessions func() map[string]bool

func New(logger *slog.Logger, logDiscovery *registry.LogDiscovery, st *store.Store, known knownTmuxSessions, rt *runtime.Manager, ready *readiness.Engine, agentRegistry *registry.Registry) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), logger: logger}

	if _, err := s.cron.AddFunc("@every 5s", func() {
		for _, p := range []registry.Provider{registry.ProviderClaude, registry.ProviderCodex, registry.ProviderPi} {
			if _, err := logDiscovery.Discover(p); err != nil {
				s.logger.Debug("log discovery refresh failed", "provider", p, "err", err)
			}
		}
	}); err != nil {
		return nil, err
	}

	if _, err := s.cron.AddFunc("@every 2s", func() {
		s.pollTmuxPanes(rt, ready, agentRegistry)
	}); err != nil {
		return nil, err
	}

	if _, err := s.cron.AddFunc("@every 5m", func() {
		s.sweepOrphanedTmuxSessions(known)
	}); err != nil {
		return nil, err
	}

	if _, err := s.cron.AddFunc("@every 1h", func() {
		if err := st.PruneReadinessTrace(time.Now().Add(-7 * 24 * time.Hour)); err != nil {
			s.logger.Warn("readiness trace pruning failed", "err", err)
		}
	}); err != nil {
		return nil, err
	}

	return s, nil
}

// pollTmuxPanes is the pane-change inference's sampling loop (spec
// §4.3.2): every tmux-backed session's visible pane is captured and fed
// to the readiness engine, and its current working directory is
// persisted to the registry as an observed "runtime" cwd (spec §2,
// §4.4's cwd-priority cascade).
func (s *Scheduler) pollTmuxPanes(rt *runtime.Manager, ready *readiness.Engine, agentRegistry *registry.Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	for _, sum := range rt.List() {
		if sum.Backend != runtime.BackendTmux || sum.TmuxSession == "" {
			continue
		}
		server := tmuxops.Server(sum.TmuxServer)

		if content := tmuxops.CapturePane(ctx, server, sum.TmuxSession); content != nil {
			ready.UpdatePane(sum.ID, string(content), int(sum.Cols), int(sum.Rows), 0)
		}

		cwd, err := tmuxops.PaneCurrentPath(ctx, server, sum.TmuxSession)
		if err != nil || cwd == "" {
			continue
		}
		rt.UpdateCwd(sum.ID, cwd, runtime.BackendTmux)
		if err := agentRegistry.PersistRuntimeCwdForAgentPty(sum.ID, cwd, now); err != nil {
			s.logger.Debug("persisting runtime cwd failed", "id", sum.ID, "err", err)
		}
	}
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { <-s.cron.Stop().Done() }

// sweepOrphanedTmuxSessions kills agmux_* tmux sessions the runtime no
// longer tracks, generalized from session.Manager.cleanupOrphanedTmuxSessions
// to the two-server model (agmux + default — only agmux is ever swept,
// the default server belongs to the user).
func (s *Scheduler) sweepOrphanedTmuxSessions(known knownTmuxSessions) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names, err := tmuxops.ListSessions(ctx, tmuxops.ServerAgmux)
	if err != nil {
		s.logger.Debug("failed to list tmux sessions for cleanup", "err", err)
		return
	}

	trackedSet := known()
	for _, name := range names {
		if trackedSet[name] {
			continue
		}
		s.logger.Info("killing orphaned tmux session", "name", name)
		if err := tmuxops.KillSession(ctx, tmuxops.ServerAgmux, name); err != nil {
			s.logger.Debug("failed to kill orphaned tmux session", "name", name, "err", err)
		}
	}
}
