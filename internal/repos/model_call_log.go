package repos

import (
	"context"

	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/types"
	"gorm.io/gorm"
)

type ModelCallLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.ModelCallLog) (*types.ModelCallLog, error)
	GetByAnchorKey(ctx context.Context, tx *gorm.DB, anchorKey string, limit int) ([]*types.ModelCallLog, error)
	TotalCostForAnchor(ctx context.Context, tx *gorm.DB, anchorKey string) (float64, error)
}

type modelCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModelCallLogRepo(db *gorm.DB, baseLog *logger.Logger) ModelCallLogRepo {
	repoLog := baseLog.With("repo", "ModelCallLogRepo")
	return &modelCallLogRepo{db: db, log: repoLog}
}

func (r *modelCallLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.ModelCallLog) (*types.ModelCallLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *modelCallLogRepo) GetByAnchorKey(ctx context.Context, tx *gorm.DB, anchorKey string, limit int) ([]*types.ModelCallLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var results []*types.ModelCallLog
	if err := transaction.WithContext(ctx).
		Where("anchor_key = ?", anchorKey).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *modelCallLogRepo) TotalCostForAnchor(ctx context.Context, tx *gorm.DB, anchorKey string) (float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var total float64
	if err := transaction.WithContext(ctx).
		Model(&types.ModelCallLog{}).
		Where("anchor_key = ?", anchorKey).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
