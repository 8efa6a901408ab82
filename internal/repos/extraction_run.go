package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/types"
	"gorm.io/gorm"
)

type ExtractionRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.ExtractionRun) (*types.ExtractionRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExtractionRun, error)
	GetByAnchorKey(ctx context.Context, tx *gorm.DB, anchorKey string, limit int) ([]*types.ExtractionRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type extractionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionRunRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionRunRepo {
	repoLog := baseLog.With("repo", "ExtractionRunRepo")
	return &extractionRunRepo{db: db, log: repoLog}
}

func (r *extractionRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.ExtractionRun) (*types.ExtractionRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *extractionRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExtractionRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.ExtractionRun
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *extractionRunRepo) GetByAnchorKey(ctx context.Context, tx *gorm.DB, anchorKey string, limit int) ([]*types.ExtractionRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var results []*types.ExtractionRun
	if err := transaction.WithContext(ctx).
		Where("anchor_key = ?", anchorKey).
		Order("started_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *extractionRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.ExtractionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
