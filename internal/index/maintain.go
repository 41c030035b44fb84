// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// inBackoff reports whether the named maintenance operation is inside its
// failure window. Windows are tracked per operation so a failing embed
// does not suppress updates.
func (c *Client) inBackoff(op string) bool {
	c.backoffMu.Lock()
	defer c.backoffMu.Unlock()
	until, ok := c.backoffUntil[op]
	return ok && time.Now().Before(until)
}

func (c *Client) setBackoff(op string) {
	c.backoffMu.Lock()
	defer c.backoffMu.Unlock()
	c.backoffUntil[op] = time.Now().Add(c.cfg.MaintainBackoff)
}

func (c *Client) clearBackoff(op string) {
	c.backoffMu.Lock()
	defer c.backoffMu.Unlock()
	delete(c.backoffUntil, op)
}

// Update asks the tool to re-scan the given directory into a collection.
// Failures open a backoff window rather than propagating: the next
// consolidation pass will try again, and a stale index only widens recall
// a little.
func (c *Client) Update(ctx context.Context, dir, collection string) bool {
	return c.maintain(ctx, "update", dir, collection)
}

// Embed asks the tool to (re)compute vector embeddings for a collection.
func (c *Client) Embed(ctx context.Context, dir, collection string) bool {
	return c.maintain(ctx, "embed", dir, collection)
}

func (c *Client) maintain(ctx context.Context, op, dir, collection string) bool {
	if collection == "" {
		collection = c.cfg.DefaultCollection
	}
	if c.inBackoff(op) {
		slog.Debug("index: maintenance skipped, in backoff", "op", op)
		return false
	}
	state := c.ensureProbed(ctx)
	if state == StateUnavailable {
		return false
	}

	if state.HasDaemon() {
		req := map[string]string{"op": op, "dir": dir, "collection": collection}
		if err := c.daemonCall(ctx, "/v1/maintain", req, nil); err == nil {
			c.clearBackoff(op)
			return true
		} else {
			slog.Debug("index: daemon maintenance failed, trying cli", "op", op, "error", err)
		}
	}

	if !c.State().HasCLI() {
		c.setBackoff(op)
		return false
	}
	_, err := c.runCLI(ctx, CallWrite, op, "--collection", collection, dir)
	if err != nil {
		slog.Warn("index: maintenance failed", "op", op, "error", err)
		c.collector.RecordError(ctx, "index_"+op, "maintenance_failure")
		c.setBackoff(op)
		return false
	}
	c.clearBackoff(op)
	return true
}

// EnsureCollection reports whether a collection exists in the index.
// Any failure to ask yields CollectionUnknown: absence of evidence is not
// evidence of absence, and callers must not create or delete on Unknown.
func (c *Client) EnsureCollection(ctx context.Context, name string) CollectionState {
	if name == "" {
		name = c.cfg.DefaultCollection
	}
	state := c.ensureProbed(ctx)
	if state == StateUnavailable {
		return CollectionUnknown
	}

	var names []string
	if state.HasDaemon() {
		if err := c.daemonCall(ctx, "/v1/collections", map[string]string{}, &names); err != nil {
			names = nil
		}
	}
	if names == nil && c.State().HasCLI() {
		out, err := c.runCLI(ctx, CallRead, "collections", "--json")
		if err != nil {
			return CollectionUnknown
		}
		if err := json.Unmarshal(out, &names); err != nil {
			return CollectionUnknown
		}
	}
	if names == nil {
		return CollectionUnknown
	}

	for _, n := range names {
		if strings.EqualFold(n, name) {
			return CollectionPresent
		}
	}
	return CollectionMissing
}
