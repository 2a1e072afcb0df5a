package model

import "time"

// Blob is one serialized value under a fixed storage key.
type Blob struct {
	Name      string `gorm:"primaryKey"`
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
