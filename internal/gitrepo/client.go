// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gitrepo wraps the git command line as the versioned-storage
// provider for the record store: staging and committing store files,
// reading file content at earlier revisions, and reporting sync state
// against the remote.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 30 * time.Second

// Client executes git commands in one repository working directory. All
// methods are safe for concurrent use.
type Client struct {
	root        string
	timeout     time.Duration
	lockTimeout time.Duration
}

// NewClient returns a client rooted at the given directory. The directory
// does not have to be a repository yet; Init creates one.
func NewClient(root string) (*Client, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}
	return &Client{root: abs, timeout: DefaultTimeout, lockTimeout: DefaultTimeout}, nil
}

// Root returns the repository working directory.
func (c *Client) Root() string { return c.root }

// output executes git and returns raw stdout. File content read through
// here must not be trimmed.
func (c *Client) output(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("git %s: timeout after %v", args[0], c.timeout)
		}
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// run executes git and returns stdout with surrounding whitespace removed.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	out, err := c.output(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) runSilent(ctx context.Context, args ...string) error {
	_, err := c.run(ctx, args...)
	return err
}

// Init creates an empty repository at the client root.
func (c *Client) Init(ctx context.Context) error {
	return c.runSilent(ctx, "init")
}

// IsRepository reports whether the root is inside a git repository.
func (c *Client) IsRepository(ctx context.Context) bool {
	return c.runSilent(ctx, "rev-parse", "--git-dir") == nil
}

// Add stages paths for the next commit, waiting for a concurrent git
// operation to release the index first.
func (c *Client) Add(ctx context.Context, paths ...string) error {
	if err := c.WaitForIndexLock(ctx); err != nil {
		return err
	}
	args := append([]string{"add", "--"}, paths...)
	if err := c.runSilent(ctx, args...); err != nil {
		return fmt.Errorf("staging %s: %w", strings.Join(paths, " "), err)
	}
	return nil
}

// Remove removes paths from the index and the working tree.
func (c *Client) Remove(ctx context.Context, paths ...string) error {
	if err := c.WaitForIndexLock(ctx); err != nil {
		return err
	}
	args := append([]string{"rm", "-f", "--quiet", "--"}, paths...)
	return c.runSilent(ctx, args...)
}

// Commit records the staged changes. skipHooks bypasses pre-commit hooks.
func (c *Client) Commit(ctx context.Context, message string, skipHooks bool) error {
	args := []string{"commit", "-m", message}
	if skipHooks {
		args = append(args, "--no-verify")
	}
	if err := c.runSilent(ctx, args...); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// HasChanges reports whether the working tree or index differs from HEAD.
// Untracked files count as changes.
func (c *Client) HasChanges(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("reading status: %w", err)
	}
	return out != "", nil
}

// HasChangesIn reports whether the given path has staged, unstaged, or
// untracked changes.
func (c *Client) HasChangesIn(ctx context.Context, path string) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain", "--", path)
	if err != nil {
		return false, fmt.Errorf("reading status of %s: %w", path, err)
	}
	return out != "", nil
}

// HasStagedChanges reports whether the index holds changes to commit.
// Works in repositories without any commit yet, where HEAD does not
// resolve.
func (c *Client) HasStagedChanges(ctx context.Context) (bool, error) {
	if err := c.runSilent(ctx, "rev-parse", "--verify", "HEAD"); err != nil {
		out, lsErr := c.run(ctx, "ls-files", "--cached")
		if lsErr != nil {
			return false, fmt.Errorf("reading index: %w", lsErr)
		}
		return out != "", nil
	}
	out, err := c.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("reading staged changes: %w", err)
	}
	return out != "", nil
}

// UntrackedFiles lists files that are neither tracked nor ignored, as
// repository-relative paths.
func (c *Client) UntrackedFiles(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Revisions lists the hashes of commits that touched path, newest first.
func (c *Client) Revisions(ctx context.Context, path string) ([]string, error) {
	out, err := c.run(ctx, "log", "--format=%H", "--", path)
	if err != nil {
		return nil, fmt.Errorf("listing revisions of %s: %w", path, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Show returns the content of path at the given revision, byte-exact.
func (c *Client) Show(ctx context.Context, revision, path string) ([]byte, error) {
	out, err := c.output(ctx, "show", revision+":"+path)
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, revision, err)
	}
	return out, nil
}

// FileInHead reports whether path exists in the HEAD commit tree.
func (c *Client) FileInHead(ctx context.Context, path string) bool {
	return c.runSilent(ctx, "cat-file", "-e", "HEAD:"+path) == nil
}

// HeadSHA returns the commit hash of HEAD.
func (c *Client) HeadSHA(ctx context.Context) (string, error) {
	sha, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return sha, nil
}

// HeadMessage returns the full message of the HEAD commit.
func (c *Client) HeadMessage(ctx context.Context) (string, error) {
	msg, err := c.run(ctx, "log", "-1", "--format=%B")
	if err != nil {
		return "", fmt.Errorf("reading HEAD message: %w", err)
	}
	return msg, nil
}

// TreeHash writes the current index as a tree object and returns its hash.
func (c *Client) TreeHash(ctx context.Context) (string, error) {
	hash, err := c.run(ctx, "write-tree")
	if err != nil {
		return "", fmt.Errorf("writing tree: %w", err)
	}
	return hash, nil
}

// RemoteDifferences returns how many commits the current branch is behind
// and ahead of its upstream. Both counts are -1 when there is no upstream
// or the remote cannot be fetched.
func (c *Client) RemoteDifferences(ctx context.Context) (behind, ahead int, err error) {
	if _, upErr := c.run(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}"); upErr != nil {
		return -1, -1, nil
	}
	if fetchErr := c.runSilent(ctx, "fetch", "--quiet"); fetchErr != nil {
		return -1, -1, nil
	}
	out, err := c.run(ctx, "rev-list", "--left-right", "--count", "HEAD...@{upstream}")
	if err != nil {
		return 0, 0, fmt.Errorf("counting remote differences: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	ahead, _ = strconv.Atoi(fields[0])
	behind, _ = strconv.Atoi(fields[1])
	return behind, ahead, nil
}

// BehindRemote reports whether the upstream has commits not yet pulled.
func (c *Client) BehindRemote(ctx context.Context) bool {
	behind, _, err := c.RemoteDifferences(ctx)
	return err == nil && behind > 0
}

// AheadOfRemote reports whether local commits have not been pushed.
func (c *Client) AheadOfRemote(ctx context.Context) bool {
	_, ahead, err := c.RemoteDifferences(ctx)
	return err == nil && ahead > 0
}
