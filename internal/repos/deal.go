package repos

import (
	"context"
	"time"

	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/types"
	"gorm.io/gorm"
)

type DealRepo interface {
	Create(ctx context.Context, tx *gorm.DB, deal *types.Deal) (*types.Deal, error)
	GetByDealID(ctx context.Context, tx *gorm.DB, dealID string) (*types.Deal, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Deal, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, dealID string, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, dealID string) error
}

type dealRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDealRepo(db *gorm.DB, baseLog *logger.Logger) DealRepo {
	repoLog := baseLog.With("repo", "DealRepo")
	return &dealRepo{db: db, log: repoLog}
}

func (r *dealRepo) Create(ctx context.Context, tx *gorm.DB, deal *types.Deal) (*types.Deal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(deal).Error; err != nil {
		return nil, err
	}
	return deal, nil
}

func (r *dealRepo) GetByDealID(ctx context.Context, tx *gorm.DB, dealID string) (*types.Deal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var deal types.Deal
	if err := transaction.WithContext(ctx).
		Where("deal_id = ?", dealID).
		First(&deal).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *dealRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Deal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var results []*types.Deal
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *dealRepo) UpdateFields(ctx context.Context, tx *gorm.DB, dealID string, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if dealID == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.Deal{}).
		Where("deal_id = ?", dealID).
		Updates(updates).Error
}

func (r *dealRepo) Delete(ctx context.Context, tx *gorm.DB, dealID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Delete(&types.Deal{}).Error
}
