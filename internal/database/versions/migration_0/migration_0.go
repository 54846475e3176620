package migration_0

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Schema as of the first release. Copied rather than referenced so later
// schema changes do not rewrite history.
type Prediction struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ModelName string `gorm:"size:40;not null"`
	Label     int    `gorm:"not null"`

	ImagePath string

	LatencyMs    int64
	CreationTime time.Time `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&Prediction{})
}

func Rollback(db *gorm.DB) error {
	return db.Migrator().DropTable(&Prediction{})
}
