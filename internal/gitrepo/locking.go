// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockPollInterval controls how often WaitForIndexLock re-checks the
// advisory lock file. A variable so tests can shorten the wait.
var LockPollInterval = 500 * time.Millisecond

// SetLockTimeout bounds WaitForIndexLock. Non-positive values keep the
// current bound.
func (c *Client) SetLockTimeout(d time.Duration) {
	if d > 0 {
		c.lockTimeout = d
	}
}

// WaitForIndexLock blocks until the repository's advisory index lock is
// released. Git writes .git/index.lock while mutating the index; the lock
// is never broken here, only waited on, until the context is canceled or
// the lock timeout elapses.
func (c *Client) WaitForIndexLock(ctx context.Context) error {
	lock, err := c.indexLockPath(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.lockTimeout)
	for {
		if _, err := os.Stat(lock); os.IsNotExist(err) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("waiting for git index lock %s: timeout after %v", lock, c.lockTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(LockPollInterval):
		}
	}
}

// indexLockPath resolves .git/index.lock through rev-parse, so linked
// worktrees resolve to their own git dir.
func (c *Client) indexLockPath(ctx context.Context) (string, error) {
	gitDir, err := c.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("resolving git dir: %w", err)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(c.root, gitDir)
	}
	return filepath.Join(gitDir, "index.lock"), nil
}
