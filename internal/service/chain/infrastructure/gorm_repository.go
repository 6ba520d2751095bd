package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain"
)

// OperationModel 是链上操作追踪记录的数据库模型。
type OperationModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	Kind       string `gorm:"size:32;not null"`
	OfferingID string `gorm:"size:64;index"`
	ItemID     string `gorm:"size:96"`
	Attempts   int
	State      string `gorm:"size:16;index"`
	Result     string `gorm:"size:1024"`
	Error      string `gorm:"size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (OperationModel) TableName() string { return "chain_operations" }

func toDomainOperation(m *OperationModel) *domain.Operation {
	return &domain.Operation{
		ID:         m.ID,
		Kind:       domain.Kind(m.Kind),
		OfferingID: m.OfferingID,
		ItemID:     m.ItemID,
		Attempts:   m.Attempts,
		State:      domain.State(m.State),
		Result:     m.Result,
		Error:      m.Error,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toOperationModel(op *domain.Operation) *OperationModel {
	return &OperationModel{
		ID:         op.ID,
		Kind:       string(op.Kind),
		OfferingID: op.OfferingID,
		ItemID:     op.ItemID,
		Attempts:   op.Attempts,
		State:      string(op.State),
		Result:     op.Result,
		Error:      op.Error,
		CreatedAt:  op.CreatedAt,
		UpdatedAt:  op.UpdatedAt,
	}
}

// GormOperationRepository 是 domain.OperationRepository 的 GORM 实现。
type GormOperationRepository struct {
	db *gorm.DB
}

func NewGormOperationRepository(db *gorm.DB) *GormOperationRepository {
	return &GormOperationRepository{db: db}
}

func (r *GormOperationRepository) Save(ctx context.Context, op *domain.Operation) error {
	if err := r.db.WithContext(ctx).Save(toOperationModel(op)).Error; err != nil {
		return errors.Wrap(err, "save chain operation")
	}
	return nil
}

func (r *GormOperationRepository) FindByID(ctx context.Context, id string) (*domain.Operation, error) {
	var model OperationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOperationNotFound
		}
		return nil, errors.Wrap(err, "find chain operation")
	}
	return toDomainOperation(&model), nil
}

func (r *GormOperationRepository) ListUnfinished(ctx context.Context) ([]*domain.Operation, error) {
	var models []OperationModel
	err := r.db.WithContext(ctx).
		Where("state IN ?", []string{string(domain.StateSubmitted), string(domain.StatePolling)}).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list unfinished chain operations")
	}
	ops := make([]*domain.Operation, 0, len(models))
	for i := range models {
		ops = append(ops, toDomainOperation(&models[i]))
	}
	return ops, nil
}

// GormResultApplier 是 domain.ResultApplier 的 GORM 实现。
// 条件更新（仅当字段尚未回填）保证重复应用是 no-op。
type GormResultApplier struct {
	db *gorm.DB
}

func NewGormResultApplier(db *gorm.DB) *GormResultApplier {
	return &GormResultApplier{db: db}
}

func (a *GormResultApplier) ApplyClassCreated(ctx context.Context, offeringID, assetClassID string) error {
	err := a.db.WithContext(ctx).
		Table("offerings").
		Where("id = ? AND (asset_class_id IS NULL OR asset_class_id = '')", offeringID).
		Update("asset_class_id", assetClassID).Error
	return errors.Wrap(err, "apply class created")
}

func (a *GormResultApplier) ApplyItemBound(ctx context.Context, itemID, nftID, txHash string) error {
	err := a.db.WithContext(ctx).
		Table("items").
		Where("id = ? AND (nft_id IS NULL OR nft_id = '')", itemID).
		Updates(map[string]interface{}{"nft_id": nftID, "tx_hash": txHash}).Error
	return errors.Wrap(err, "apply item bound")
}
