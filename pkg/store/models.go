package store

import (
	"time"

	"gorm.io/datatypes"
)

// CreationModel is the GORM row backing one ledger record.
type CreationModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Prompt    string         `gorm:"type:text;not null"`
	Content   string         `gorm:"type:text;not null"`
	Type      string         `gorm:"not null;index"`
	Publish   bool           `gorm:"not null;default:false"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}
