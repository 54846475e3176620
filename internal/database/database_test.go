package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"cell-backend/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabaseCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "predictions.db")

	db, err := database.NewDatabase(path)
	require.NoError(t, err)

	record := &database.Prediction{
		Id:           uuid.New(),
		ModelName:    "DenseNet121",
		Label:        1,
		ImagePath:    "data/saved_images/image_1712345678.tif",
		LatencyMs:    42,
		CreationTime: time.Now(),
	}
	require.NoError(t, db.Create(record).Error)

	var loaded database.Prediction
	require.NoError(t, db.First(&loaded, "id = ?", record.Id).Error)
	assert.Equal(t, record.ModelName, loaded.ModelName)
	assert.Equal(t, record.Label, loaded.Label)
	assert.Equal(t, record.LatencyMs, loaded.LatencyMs)
}

func TestNewDatabaseIdempotentMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")

	_, err := database.NewDatabase(path)
	require.NoError(t, err)

	// Reopening must not fail on the already-migrated schema.
	_, err = database.NewDatabase(path)
	require.NoError(t, err)
}
