// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"
)

type searchRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection"`
	Limit      int    `json:"limit"`
	Mode       string `json:"mode,omitempty"`
}

// Search queries the default collection. When the tool is unreachable it
// returns an empty slice and no error: the engine is expected to degrade
// to its file-scan fallback, not to fail recall outright.
func (c *Client) Search(ctx context.Context, query string, limit int) []Result {
	return c.searchCollection(ctx, query, c.cfg.DefaultCollection, limit, "")
}

// SearchGlobal queries the default collection plus every configured global
// collection, concurrently, and merges the results.
func (c *Client) SearchGlobal(ctx context.Context, query string, limit int) []Result {
	collections := append([]string{c.cfg.DefaultCollection}, c.cfg.GlobalCollections...)

	var wg sync.WaitGroup
	perCollection := make([][]Result, len(collections))
	for i, coll := range collections {
		wg.Add(1)
		go func(i int, coll string) {
			defer wg.Done()
			results := c.searchCollection(ctx, query, coll, limit, "")
			for j := range results {
				if results[j].Collection == "" {
					results[j].Collection = coll
				}
			}
			perCollection[i] = results
		}(i, coll)
	}
	wg.Wait()

	merged := mergeResults(perCollection...)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// BM25Search runs a lexical-only query.
func (c *Client) BM25Search(ctx context.Context, query, collection string, limit int) []Result {
	return c.searchCollection(ctx, query, collection, limit, "bm25")
}

// VectorSearch runs a semantic-only query.
func (c *Client) VectorSearch(ctx context.Context, query, collection string, limit int) []Result {
	return c.searchCollection(ctx, query, collection, limit, "vector")
}

// HybridSearch runs lexical and semantic queries concurrently and merges
// them by path, keeping the higher score and the first non-empty snippet.
func (c *Client) HybridSearch(ctx context.Context, query, collection string, limit int) []Result {
	if collection == "" {
		collection = c.cfg.DefaultCollection
	}

	var wg sync.WaitGroup
	var lexical, semantic []Result
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical = c.BM25Search(ctx, query, collection, limit)
	}()
	go func() {
		defer wg.Done()
		semantic = c.VectorSearch(ctx, query, collection, limit)
	}()
	wg.Wait()

	merged := mergeResults(lexical, semantic)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// searchCollection routes a query through the daemon when the session is
// up, falling back to the CLI within the same call if the daemon fails.
func (c *Client) searchCollection(ctx context.Context, query, collection string, limit int, mode string) []Result {
	if query == "" || limit <= 0 {
		return nil
	}
	if collection == "" {
		collection = c.cfg.DefaultCollection
	}

	start := time.Now()
	state := c.ensureProbed(ctx)
	if state == StateUnavailable {
		c.collector.RecordOperation(ctx, "index_search", "unavailable", time.Since(start).Milliseconds())
		return nil
	}

	if state.HasDaemon() {
		req := searchRequest{Query: query, Collection: collection, Limit: limit, Mode: mode}
		var results []Result
		if err := c.daemonCall(ctx, "/v1/search", req, &results); err == nil {
			c.collector.RecordOperation(ctx, "index_search", "success", time.Since(start).Milliseconds())
			return results
		} else {
			slog.Debug("index: daemon search failed, trying cli", "error", err)
		}
	}

	// Re-read: the daemon failure above may have dropped the session.
	if !c.State().HasCLI() {
		c.collector.RecordOperation(ctx, "index_search", "unavailable", time.Since(start).Milliseconds())
		return nil
	}
	results, err := c.cliSearch(ctx, searchArgs(query, collection, limit, mode)...)
	if err != nil {
		slog.Debug("index: cli search failed", "error", err)
		c.collector.RecordError(ctx, "index_search", "cli_failure")
		return nil
	}
	c.collector.RecordOperation(ctx, "index_search", "success", time.Since(start).Milliseconds())
	return results
}

func searchArgs(query, collection string, limit int, mode string) []string {
	sub := "search"
	switch mode {
	case "bm25":
		sub = "bm25"
	case "vector":
		sub = "vector"
	}
	return []string{sub, "--collection", collection, "--limit", strconv.Itoa(limit), "--json", query}
}

// mergeResults folds result sets together keyed by path. Duplicates keep
// the higher score and the first non-empty snippet seen; the output is
// sorted by score descending.
func mergeResults(sets ...[]Result) []Result {
	byPath := make(map[string]Result)
	order := make([]string, 0)
	for _, set := range sets {
		for _, r := range set {
			existing, seen := byPath[r.Path]
			if !seen {
				byPath[r.Path] = r
				order = append(order, r.Path)
				continue
			}
			if r.Score > existing.Score {
				existing.Score = r.Score
			}
			if existing.Snippet == "" {
				existing.Snippet = r.Snippet
			}
			byPath[r.Path] = existing
		}
	}

	merged := make([]Result, 0, len(order))
	for _, path := range order {
		merged = append(merged, byPath[path])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}
