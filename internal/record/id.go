// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRecordID allocates a stable, category-prefixed record identifier with a
// timestamp and random suffix, e.g. "fact-20260831T120000-3f9a1c2b".
func NewRecordID(category Category) string {
	ts := time.Now().UTC().Format("20060102T150405")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%s-%s", category, ts, suffix)
}

// NewQuestionID allocates an identifier for a question file.
func NewQuestionID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("question-%s-%s", ts, suffix)
}

// NewSummaryID allocates an identifier for a summary file.
func NewSummaryID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("summary-%s-%s", ts, suffix)
}
