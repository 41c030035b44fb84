// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ContentHash computes the dedup digest of normalized record content.
func ContentHash(content string) string {
	hash := sha256.Sum256([]byte(normalizeForCompare(content)))
	return fmt.Sprintf("%x", hash[:16])
}

// hashIndex is the content-dedup set: one hex digest per line in a flat
// file, loaded once at startup, mutated in memory, flushed on change.
type hashIndex struct {
	mu     sync.Mutex
	path   string
	hashes map[string]struct{}
	loaded bool
}

func newHashIndex(path string) *hashIndex {
	return &hashIndex{path: path, hashes: make(map[string]struct{})}
}

func (h *hashIndex) load() error {
	if h.loaded {
		return nil
	}
	h.loaded = true

	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read hash index: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			h.hashes[line] = struct{}{}
		}
	}
	return nil
}

// Contains reports whether content with this digest has been seen before.
func (h *hashIndex) Contains(digest string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.load(); err != nil {
		return false
	}
	_, ok := h.hashes[digest]
	return ok
}

// Add records a digest and flushes the index file. Adding a known digest is
// a no-op without a flush.
func (h *hashIndex) Add(digest string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.load(); err != nil {
		return err
	}
	if _, ok := h.hashes[digest]; ok {
		return nil
	}
	h.hashes[digest] = struct{}{}
	return h.flushLocked()
}

func (h *hashIndex) flushLocked() error {
	var sb strings.Builder
	for digest := range h.hashes {
		sb.WriteString(digest)
		sb.WriteString("\n")
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write hash index: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace hash index: %w", err)
	}
	return nil
}
