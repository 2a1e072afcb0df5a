package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"todo-planner/internal/model"
)

// ErrBlobNotFound is returned by Load when nothing was saved under the key yet.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore loads and saves whole serialized values under a key.
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// BlobRepository keeps blobs in the SQLite database.
type BlobRepository struct {
	db *gorm.DB
}

func NewBlobRepository(db *gorm.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

func (r *BlobRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var blob model.Blob
	err := r.db.WithContext(ctx).Where("name = ?", key).First(&blob).Error
	switch {
	case err == nil:
		return blob.Value, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrBlobNotFound
	default:
		return nil, fmt.Errorf("load blob %q: %w", key, err)
	}
}

// Save upserts the value in a single statement.
func (r *BlobRepository) Save(ctx context.Context, key string, data []byte) error {
	blob := model.Blob{Name: key, Value: data}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&blob).Error
	if err != nil {
		return fmt.Errorf("save blob %q: %w", key, err)
	}
	return nil
}

func (r *BlobRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("name = ?", key).Delete(&model.Blob{}).Error; err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}
