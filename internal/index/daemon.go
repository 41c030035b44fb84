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
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const healthProbeTimeout = 3 * time.Second

// probeDaemon checks that the daemon answers its health endpoint and then
// performs the session handshake. A handshake rejected with "already
// initialized" counts as success: the session simply outlived us.
func (c *Client) probeDaemon(ctx context.Context) bool {
	if c.cfg.DaemonURL == "" {
		return false
	}

	healthCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, c.cfg.DaemonURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("index: daemon health check failed", "error", err)
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	return c.initializeSession(ctx)
}

// initializeSession performs the one-time session handshake.
func (c *Client) initializeSession(ctx context.Context) bool {
	body := map[string]string{"action": "initialize"}
	payload, _ := json.Marshal(body)

	initCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(initCtx, http.MethodPost, c.cfg.DaemonURL+"/v1/session", bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("index: session handshake failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK:
		return true
	case resp.StatusCode == http.StatusConflict,
		strings.Contains(strings.ToLower(string(raw)), "already initialized"):
		// Daemon kept the session from a previous run.
		return true
	default:
		slog.Warn("index: session handshake rejected", "status", resp.StatusCode)
		return false
	}
}

// daemonCall posts a JSON request to the daemon and decodes the response
// into out. Connection-level failures invalidate the session; timeouts and
// non-2xx statuses do not.
func (c *Client) daemonCall(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding daemon request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.DaemonURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			// Slow response: session stays valid, this call just loses.
			return fmt.Errorf("daemon request timed out: %w", err)
		}
		c.invalidateDaemon(fmt.Sprintf("connection failure on %s: %v", path, err))
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding daemon response: %w", err)
	}
	return nil
}
