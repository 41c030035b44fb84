// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Catalog is the sqlite sidecar next to a record store directory. It holds
// the artifact index (record rows) and the shared status-version counter.
// Everything in it is soft state, rebuildable from the record files.
type Catalog struct {
	db *gorm.DB
}

// Open connects to (or creates) the catalog database at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		// Keep gorm quiet: stdout is reserved for MCP JSON-RPC.
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if err := db.AutoMigrate(&RecordRow{}, &StatusVersion{}, &MaintenanceLock{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the gorm handle for rebuild tooling.
func (c *Catalog) DB() *gorm.DB { return c.db }

// Upsert inserts or replaces one record row.
func (c *Catalog) Upsert(row *RecordRow) error {
	return c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// Remove deletes a record row. Missing rows are not an error.
func (c *Catalog) Remove(id string) error {
	return c.db.Where("id = ?", id).Delete(&RecordRow{}).Error
}

// RecentActive returns the n most recently updated active rows, newest
// first. The record store serves its recency fallback from this query
// through the Sink, skipping the tree walk.
func (c *Catalog) RecentActive(n int) ([]RecordRow, error) {
	var rows []RecordRow
	err := c.db.Where("status = ?", "active").
		Order("updated DESC").Limit(n).Find(&rows).Error
	return rows, err
}

// Count returns the number of cataloged records.
func (c *Catalog) Count() (int64, error) {
	var n int64
	err := c.db.Model(&RecordRow{}).Count(&n).Error
	return n, err
}

// Reset drops every record row, used before a rebuild.
func (c *Catalog) Reset() error {
	return c.db.Where("1 = 1").Delete(&RecordRow{}).Error
}

// Bump increments the shared status-version counter and returns the new
// value. The row is created on first use.
func (c *Catalog) Bump() (int64, error) {
	var version int64
	err := c.db.Transaction(func(tx *gorm.DB) error {
		var row StatusVersion
		if err := tx.Where("id = ?", 1).First(&row).Error; err != nil {
			row = StatusVersion{ID: 1, Version: 1}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			version = 1
			return nil
		}
		row.Version++
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		version = row.Version
		return nil
	})
	return version, err
}

// Current returns the status-version counter without incrementing it.
func (c *Catalog) Current() (int64, error) {
	var row StatusVersion
	if err := c.db.Where("id = ?", 1).First(&row).Error; err != nil {
		return 0, nil
	}
	return row.Version, nil
}
