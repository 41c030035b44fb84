// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import "time"

// RecordRow is the catalog's view of one record file. The record file is
// authoritative; rows exist so listing and fallback queries don't walk the
// directory tree. The catalog is always rebuildable from the files.
type RecordRow struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Category     string    `gorm:"index;not null" json:"category"`
	Status       string    `gorm:"index;not null" json:"status"`
	Confidence   float64   `json:"confidence"`
	FilePath     string    `gorm:"not null" json:"file_path"`
	Created      time.Time `json:"created"`
	Updated      time.Time `gorm:"index" json:"updated"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// TableName overrides the table name
func (RecordRow) TableName() string {
	return "records"
}

// StatusVersion is a single-row monotonic counter bumped on every
// successful status-changing operation. Sharing it through the catalog file
// makes staleness detectable across store instances and processes.
type StatusVersion struct {
	ID      uint  `gorm:"primaryKey" json:"id"`
	Version int64 `gorm:"not null" json:"version"`
}

// TableName overrides the table name
func (StatusVersion) TableName() string {
	return "status_version"
}
