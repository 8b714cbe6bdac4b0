package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrNoChanges = errors.New("nothing to commit")

var credentialPattern = regexp.MustCompile(`://[^@/\s]+@`)

type Config struct {
	WorkDir      string
	CloneTimeout time.Duration
	PushTimeout  time.Duration
	GitTimeout   time.Duration // every other git command
	AuthorName   string
	AuthorEmail  string
	Concurrency  int64 // git subprocesses allowed at once
}

// Git runs git subprocesses through a bounded pool so clones and pushes
// cannot starve the rest of the worker.
type Git struct {
	cfg    Config
	runner CommandRunner
	sem    *semaphore.Weighted
}

func New(cfg Config, runner CommandRunner) *Git {
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.CloneTimeout <= 0 {
		cfg.CloneTimeout = 120 * time.Second
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 60 * time.Second
	}
	if cfg.GitTimeout <= 0 {
		cfg.GitTimeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Git{cfg: cfg, runner: runner, sem: semaphore.NewWeighted(cfg.Concurrency)}
}

// Workspace returns a fresh, empty clone destination for name. Any leftover
// directory from a crashed run is removed first.
func (g *Git) Workspace(name string) (string, error) {
	dir := filepath.Join(g.cfg.WorkDir, "darwin-"+name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing workspace: %w", err)
	}
	if err := os.MkdirAll(g.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}
	return dir, nil
}

// Cleanup removes a clone. Errors are logged only.
func (g *Git) Cleanup(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.WarnContext(ctx, "failed to remove clone", "dir", dir, "error", err)
		return
	}
	slog.DebugContext(ctx, "clone removed", "dir", dir)
}

// Clone makes a shallow clone of branch into dir.
func (g *Git) Clone(ctx context.Context, cloneURL, branch, dir string) error {
	_, err := g.run(ctx, g.cfg.CloneTimeout, "", "clone", "--depth", "1", "--branch", branch, cloneURL, dir)
	return err
}

func (g *Git) CreateBranch(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, g.cfg.GitTimeout, dir, "checkout", "-b", branch)
	return err
}

// CommitAll stages everything and commits it. It returns the changed paths,
// or ErrNoChanges when the work tree is clean.
func (g *Git) CommitAll(ctx context.Context, dir, message string) ([]string, error) {
	if _, err := g.run(ctx, g.cfg.GitTimeout, dir, "add", "-A"); err != nil {
		return nil, err
	}

	status, err := g.run(ctx, g.cfg.GitTimeout, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	files := ParsePorcelain(string(status))
	if len(files) == 0 {
		return nil, ErrNoChanges
	}

	identity := []string{
		"GIT_AUTHOR_NAME=" + g.cfg.AuthorName,
		"GIT_AUTHOR_EMAIL=" + g.cfg.AuthorEmail,
		"GIT_COMMITTER_NAME=" + g.cfg.AuthorName,
		"GIT_COMMITTER_EMAIL=" + g.cfg.AuthorEmail,
	}
	if _, err := g.runEnv(ctx, g.cfg.GitTimeout, dir, identity, "commit", "-m", message); err != nil {
		return nil, err
	}
	return files, nil
}

func (g *Git) Push(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, g.cfg.PushTimeout, dir, "push", "-u", "origin", branch)
	return err
}

func (g *Git) run(ctx context.Context, timeout time.Duration, dir string, args ...string) ([]byte, error) {
	return g.runEnv(ctx, timeout, dir, nil, args...)
}

func (g *Git) runEnv(ctx context.Context, timeout time.Duration, dir string, env []string, args ...string) ([]byte, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for git slot: %w", err)
	}
	defer g.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := g.runner.Run(ctx, Command{
		Name: "git",
		Args: args,
		Dir:  dir,
		Env:  append([]string{"GIT_TERMINAL_PROMPT=0"}, env...),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("git %s timed out after %s", args[0], timeout)
		}
		return output, fmt.Errorf("git %s: %w: %s", redact(strings.Join(args, " ")), err, redact(strings.TrimSpace(string(output))))
	}

	slog.DebugContext(ctx, "git command completed",
		"command", args[0],
		"duration_ms", time.Since(start).Milliseconds())
	return output, nil
}

// ParsePorcelain extracts paths from `git status --porcelain` output. Renames
// report the new path.
func ParsePorcelain(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, strings.Trim(path, `"`))
	}
	return files
}

func redact(s string) string {
	return credentialPattern.ReplaceAllString(s, "://***@")
}
