package database

import (
	"context"
	"database/sql"
	"errors"

	"blocksync/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type maxTimestampRow struct {
	MaxTimestamp sql.NullString
}

// BlockStore persists mirrored block records.
type BlockStore struct {
	db *gorm.DB
}

func NewBlockStore(db *gorm.DB) (*BlockStore, error) {
	if db == nil {
		return nil, errors.New("database not initialised")
	}
	return &BlockStore{db: db}, nil
}

// MaxTimestamp returns the greatest stored timestamp. ok is false when the
// table is empty.
func (s *BlockStore) MaxTimestamp(ctx context.Context) (string, bool, error) {
	var result maxTimestampRow

	err := s.db.WithContext(ctx).
		Model(&domain.BlockRecord{}).
		Select("MAX(?) AS max_timestamp", clause.Column{Name: "timestamp"}).
		Scan(&result).Error
	if err != nil {
		return "", false, err
	}
	if !result.MaxTimestamp.Valid {
		return "", false, nil
	}
	return result.MaxTimestamp.String, true, nil
}

// InsertIgnore stores record unless a row with the same id exists. Existing
// rows are left untouched. inserted reports whether a new row was written.
func (s *BlockStore) InsertIgnore(ctx context.Context, record domain.BlockRecord) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *BlockStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.BlockRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *BlockStore) Get(ctx context.Context, id uint64) (domain.BlockRecord, bool, error) {
	var record domain.BlockRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.BlockRecord{}, false, nil
	}
	if err != nil {
		return domain.BlockRecord{}, false, err
	}
	return record, true, nil
}
