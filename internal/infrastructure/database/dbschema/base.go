package dbschema

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel carries the shared surrogate key and timestamps. DeletedAt backs
// the reversible soft-delete state of conversations.
type BaseModel struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
