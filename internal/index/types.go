// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import "fmt"

// Result is one search hit from the external index.
type Result struct {
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
	Collection string  `json:"collection,omitempty"`
}

// CollectionState is the answer of EnsureCollection. Probe and command
// errors map to Unknown, never Missing, so a transient hiccup cannot
// permanently disable dependent features.
type CollectionState int

const (
	CollectionUnknown CollectionState = iota
	CollectionPresent
	CollectionMissing
)

// String returns the state name.
func (s CollectionState) String() string {
	switch s {
	case CollectionPresent:
		return "present"
	case CollectionMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// CallClass classifies a CLI invocation. Write-ish calls mutate index state
// and are serialized behind the client's mutex with lock-contention
// retries; read calls get exactly one attempt.
type CallClass int

const (
	CallRead CallClass = iota
	CallWrite
)

// String returns the class name.
func (c CallClass) String() string {
	if c == CallWrite {
		return "write"
	}
	return "read"
}

// LockContentionError marks a CLI failure whose output matched the external
// store's single-writer lock error signature.
type LockContentionError struct {
	Output string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("index: lock contention: %s", e.Output)
}

// UnavailableError carries a typed reason for why the index is unreachable.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("index: unavailable: %s", e.Reason)
}
