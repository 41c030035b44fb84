// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
)

// DefaultLockTTL bounds how long a crashed holder can block maintenance.
const DefaultLockTTL = 5 * time.Minute

// MaintenanceLock is an advisory lock row so that CLI tooling and a live
// service pointed at the same store never run a maintenance pass
// concurrently.
type MaintenanceLock struct {
	Name      string    `gorm:"primaryKey"`
	Owner     string    `gorm:"not null"`
	Version   int64     `gorm:"not null;default:1"`
	LockedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for MaintenanceLock
func (MaintenanceLock) TableName() string {
	return "maintenance_locks"
}

// IsExpired returns true if the lock has expired
func (l *MaintenanceLock) IsExpired() bool {
	return time.Now().After(l.ExpiresAt)
}

// LockOwner identifies this process for advisory locks.
func LockOwner() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// AcquireLock takes the named advisory lock for owner. Returns false when
// another live owner holds it; expired locks are taken over.
func (c *Catalog) AcquireLock(name, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now()
	acquired := false

	err := c.db.Transaction(func(tx *gorm.DB) error {
		var existing MaintenanceLock
		err := tx.Where("name = ?", name).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			lock := MaintenanceLock{
				Name:      name,
				Owner:     owner,
				Version:   1,
				LockedAt:  now,
				ExpiresAt: now.Add(ttl),
			}
			if err := tx.Create(&lock).Error; err != nil {
				return err
			}
			acquired = true
			return nil
		case err != nil:
			return err
		}

		if !existing.IsExpired() && existing.Owner != owner {
			return nil
		}

		// Expired or re-entrant: take over, guarded by the version column.
		result := tx.Model(&MaintenanceLock{}).
			Where("name = ? AND version = ?", name, existing.Version).
			Updates(map[string]interface{}{
				"owner":      owner,
				"locked_at":  now,
				"expires_at": now.Add(ttl),
				"version":    existing.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		acquired = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	return acquired, nil
}

// ReleaseLock drops the named lock if owner still holds it.
func (c *Catalog) ReleaseLock(name, owner string) error {
	return c.db.Where("name = ? AND owner = ?", name, owner).
		Delete(&MaintenanceLock{}).Error
}
