package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Ban is a persisted ban entry. Pattern is matched against the identity and
// address of every peer attempting to connect.
type Ban struct {
	ID        uint64 `gorm:"primaryKey"`
	Pattern   string `gorm:"unique; not null"`
	Reason    string
	CreatedAt time.Time
	// ExpiresAt is nil for permanent bans.
	ExpiresAt *time.Time
}

// FindBans returns every ban entry, expired or not.
func FindBans(db *gorm.DB) ([]Ban, error) {
	var bans []Ban
	if err := db.Order("id").Find(&bans).Error; err != nil {
		return nil, err
	}
	return bans, nil
}

// FindBanByPattern returns the ban with the specified pattern or nil if there is no match.
func FindBanByPattern(db *gorm.DB, pattern string) (*Ban, error) {
	var ban Ban
	err := db.Where("pattern = ?", pattern).First(&ban).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &ban, nil
}

// SaveBan creates the ban or replaces the reason and expiry of an existing
// entry with the same pattern.
func SaveBan(db *gorm.DB, ban *Ban) error {
	existing, err := FindBanByPattern(db, ban.Pattern)
	if err != nil {
		return err
	}
	if existing != nil {
		ban.ID = existing.ID
		ban.CreatedAt = existing.CreatedAt
	}
	return db.Save(ban).Error
}

// DeleteBan permanently removes the ban with the specified pattern.
func DeleteBan(db *gorm.DB, pattern string) error {
	return db.Where("pattern = ?", pattern).Delete(&Ban{}).Error
}

// DeleteExpiredBans removes every ban that expired before now.
func DeleteExpiredBans(db *gorm.DB, now time.Time) error {
	return db.Where("expires_at IS NOT NULL AND expires_at < ?", now).Delete(&Ban{}).Error
}
