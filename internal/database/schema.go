package database

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is the audit record written once per successful /predict call.
type Prediction struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ModelName string `gorm:"size:40;not null"`
	Label     int    `gorm:"not null"`

	// ImagePath is where the 16-bit TIFF copy of the request image landed.
	ImagePath string

	LatencyMs    int64
	CreationTime time.Time `gorm:"index"`
}
