// Package workspace runs the deterministic checks the pipeline relies on:
// test, typecheck, and build commands, plus git-based detection of files
// modified outside a phase's ownership list.
package workspace

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"

	"github.com/felixgeelhaar/phaseline/internal/config"
	"github.com/felixgeelhaar/phaseline/internal/log"
)

// CheckResult is the outcome of one deterministic command
type CheckResult struct {
	// ExitCode is the command's exit status
	ExitCode int
	// Output is the captured combined stdout/stderr
	Output string
	// Passed is true when the command exited zero
	Passed bool
}

// Workspace wraps the project directory the agents work in
type Workspace struct {
	root   string
	checks config.Checks
	logger *log.Logger
}

// New creates a Workspace rooted at the project directory
func New(root string, checks config.Checks) *Workspace {
	return &Workspace{
		root:   root,
		checks: checks,
		logger: log.DefaultLogger().With("component", "workspace"),
	}
}

// Root returns the workspace directory
func (w *Workspace) Root() string {
	return w.root
}

// RunTests executes the configured test command
func (w *Workspace) RunTests(ctx context.Context) (CheckResult, error) {
	return w.runCommand(ctx, w.checks.Test)
}

// RunTypecheck executes the configured static type/consistency check
func (w *Workspace) RunTypecheck(ctx context.Context) (CheckResult, error) {
	return w.runCommand(ctx, w.checks.Typecheck)
}

// RunBuild executes the configured whole-plan build verification command
func (w *Workspace) RunBuild(ctx context.Context) (CheckResult, error) {
	return w.runCommand(ctx, w.checks.Build)
}

func (w *Workspace) runCommand(ctx context.Context, argv []string) (CheckResult, error) {
	if len(argv) == 0 {
		// An unconfigured optional check passes trivially.
		return CheckResult{Passed: true}, nil
	}

	w.logger.Debug("running check", "command", argv[0], "args", argv[1:])

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from operator config
	cmd.Dir = w.root
	output, err := cmd.CombinedOutput()

	result := CheckResult{Output: string(output)}
	if err == nil {
		result.Passed = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	// The command could not be started at all; that is an environment
	// problem, not a failing check.
	return CheckResult{}, err
}

// MissingOwnedFiles returns the owned paths that do not exist in the
// workspace
func (w *Workspace) MissingOwnedFiles(owned []string) []string {
	var missing []string
	for _, rel := range owned {
		if _, err := os.Stat(filepath.Join(w.root, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	return missing
}

// Snapshot captures the set of currently modified files. When the workspace
// is not a git repository the snapshot is nil and ownership drift detection
// is skipped.
func (w *Workspace) Snapshot() (map[string]bool, error) {
	status, err := w.gitStatus()
	if err != nil || status == nil {
		return nil, err
	}

	dirty := make(map[string]bool)
	for file, st := range status {
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			dirty[file] = true
		}
	}
	return dirty, nil
}

// ModifiedOutside returns files that became dirty since the snapshot and are
// not in the phase's ownership list, sorted for stable reporting
func (w *Workspace) ModifiedOutside(snapshot map[string]bool, owned []string) ([]string, error) {
	current, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	ownedSet := make(map[string]bool, len(owned))
	for _, f := range owned {
		ownedSet[f] = true
	}

	var outside []string
	for file := range current {
		if snapshot[file] || ownedSet[file] {
			continue
		}
		outside = append(outside, file)
	}
	sort.Strings(outside)
	return outside, nil
}

func (w *Workspace) gitStatus() (git.Status, error) {
	repo, err := git.PlainOpen(w.root)
	if err != nil {
		// Not a git repository; drift detection degrades gracefully.
		return nil, nil
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, nil
	}
	status, err := worktree.Status()
	if err != nil {
		w.logger.WithError(err).Warn("git status failed, skipping drift detection")
		return nil, nil
	}
	return status, nil
}
