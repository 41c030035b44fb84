// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// lockSignatures are the stderr fragments that identify transient lock
// contention inside the external tool's embedded store. Only these merit
// a retry; any other failure is surfaced immediately.
var lockSignatures = []string{
	"database is locked",
	"lock held",
	"resource temporarily unavailable",
}

func isLockContention(output string) bool {
	lower := strings.ToLower(output)
	for _, sig := range lockSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// runCLI invokes the index tool as a subprocess and returns its stdout.
// Write-ish calls are serialized through cliMu and retried with linear
// backoff on lock contention; reads run unserialized with one attempt,
// since a lost read just means a thinner recall.
func (c *Client) runCLI(ctx context.Context, class CallClass, args ...string) ([]byte, error) {
	c.mu.Lock()
	path := c.cliPath
	c.mu.Unlock()
	if path == "" {
		return nil, &UnavailableError{Reason: "no cli binary discovered"}
	}

	if class == CallWrite {
		c.cliMu.Lock()
		defer c.cliMu.Unlock()
	}

	attempts := 1
	if class == CallWrite {
		attempts = writeAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: step, 2*step, ...
			delay := time.Duration(attempt-1) * c.cfg.RetryBackoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		out, err := c.runOnce(ctx, path, args)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var lockErr *LockContentionError
		if class == CallWrite && errors.As(err, &lockErr) {
			slog.Debug("index: lock contention, retrying",
				"attempt", attempt, "args", strings.Join(args, " "))
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *Client) runOnce(ctx context.Context, path string, args []string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.CLITimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		combined := stderr.String()
		if combined == "" {
			combined = stdout.String()
		}
		if isLockContention(combined) {
			return nil, &LockContentionError{Output: strings.TrimSpace(combined)}
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s %s timed out after %s", cliBinary, args[0], c.cfg.CLITimeout)
		}
		return nil, fmt.Errorf("%s %s: %w: %s", cliBinary, args[0], err, strings.TrimSpace(combined))
	}
	return stdout.Bytes(), nil
}

// cliSearch runs a search-family subcommand and decodes its JSON output.
func (c *Client) cliSearch(ctx context.Context, args ...string) ([]Result, error) {
	out, err := c.runCLI(ctx, CallRead, args...)
	if err != nil {
		return nil, err
	}
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}
	var results []Result
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", cliBinary, err)
	}
	return results, nil
}
