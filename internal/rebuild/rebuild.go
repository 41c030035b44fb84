// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package rebuild

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/muninnlabs/muninn/internal/catalog"
	"github.com/muninnlabs/muninn/internal/record"
)

// Options configures rebuild behavior
type Options struct {
	Force bool // Clear existing rows before rebuild
}

// Result contains statistics from the rebuild operation
type Result struct {
	FilesScanned   int
	RecordsCreated int
	FilesSkipped   int
	Errors         []string
}

// RebuildCatalog scans the record directories under storeDir and
// regenerates the catalog's artifact index. The record files are
// authoritative; the catalog is soft state, so a rebuild can run at any
// time without data loss.
func RebuildCatalog(cat *catalog.Catalog, storeDir string, opts Options) (*Result, error) {
	result := &Result{}

	existing, err := cat.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count catalog rows: %w", err)
	}
	if existing > 0 {
		if !opts.Force {
			return nil, fmt.Errorf("catalog already has %d rows; use force to rebuild", existing)
		}
		if err := cat.Reset(); err != nil {
			return nil, fmt.Errorf("failed to clear catalog: %w", err)
		}
	}

	sink := catalog.NewSink(cat)

	for _, sub := range []string{"memories", "archive"} {
		root := filepath.Join(storeDir, sub)
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || filepath.Ext(d.Name()) != ".md" {
				return nil
			}
			result.FilesScanned++

			data, err := os.ReadFile(path)
			if err != nil {
				result.FilesSkipped++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			rec, err := record.Parse(string(data))
			if err != nil || rec.ID == "" {
				result.FilesSkipped++
				slog.Debug("rebuild: skipping unparsable record file", "path", path, "err", err)
				return nil
			}
			if err := sink.UpsertRecord(rec, path); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			result.RecordsCreated++
			return nil
		})
		if walkErr != nil && !os.IsNotExist(walkErr) {
			return nil, fmt.Errorf("failed to walk %s: %w", root, walkErr)
		}
	}

	slog.Info("rebuild: catalog regenerated",
		"scanned", result.FilesScanned,
		"created", result.RecordsCreated,
		"skipped", result.FilesSkipped)
	return result, nil
}
