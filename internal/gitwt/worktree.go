// Package gitwt creates git worktrees for the restore protocol's
// new_worktree target. It is intentionally narrow: no status/log/diff/
// exec porcelain, only what restore needs to produce a path.
package gitwt

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

type Manager struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Create adds a worktree from HEAD at <repoRoot>/.agmux-worktrees/<branch>,
// creating branch, or resetting it to HEAD if it already exists (git
// worktree add -B), and returns the worktree path.
func (m *Manager) Create(repoRoot, branch string) (string, error) {
	if repoRoot == "" {
		return "", fmt.Errorf("repoRoot is required")
	}
	if branch == "" {
		return "", fmt.Errorf("branch is required")
	}

	worktreePath := filepath.Join(repoRoot, ".agmux-worktrees", branch)

	if out, err := m.run(repoRoot, "worktree", "add", "-B", branch, worktreePath, "HEAD"); err != nil {
		m.logger.Debug("git worktree add failed", "branch", branch, "out", out, "err", err)
		return "", fmt.Errorf("creating worktree for branch %q: %w", branch, err)
	}

	return worktreePath, nil
}

// ValidatePath rejects a worktree path that escapes the repo's worktree
// directory, guarding the "reject unknown worktree paths" restore rule.
func (m *Manager) ValidatePath(repoRoot, worktreePath string) error {
	base := filepath.Join(repoRoot, ".agmux-worktrees")
	rel, err := filepath.Rel(base, worktreePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("worktree path %q is outside %q", worktreePath, base)
	}
	return nil
}

func (m *Manager) run(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
