package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
)

// GormOfferingRepository 是 domain.OfferingRepository 的 GORM 实现。
type GormOfferingRepository struct {
	db *gorm.DB
}

func NewGormOfferingRepository(db *gorm.DB) *GormOfferingRepository {
	return &GormOfferingRepository{db: db}
}

func (r *GormOfferingRepository) FindByID(ctx context.Context, id string) (*domain.Offering, error) {
	var model OfferingModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOfferingNotFound
		}
		return nil, errors.Wrap(err, "find offering")
	}
	return ToDomainOffering(&model), nil
}

// ListUndrawn 返回开奖时间在 after 之后的活动。
// 进程重启后用它重建开奖定时器，定时器本身不做持久化。
func (r *GormOfferingRepository) ListUndrawn(ctx context.Context, after time.Time) ([]*domain.Offering, error) {
	var models []OfferingModel
	err := r.db.WithContext(ctx).
		Where("draw_end_at > ? AND status NOT IN ?", after,
			[]string{string(domain.OfferingStatusFinished), string(domain.OfferingStatusHalted)}).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list undrawn offerings")
	}
	offerings := make([]*domain.Offering, 0, len(models))
	for i := range models {
		offerings = append(offerings, ToDomainOffering(&models[i]))
	}
	return offerings, nil
}

func (r *GormOfferingRepository) Save(ctx context.Context, offering *domain.Offering) error {
	model := ToOfferingModel(offering)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return errors.Wrap(err, "save offering")
	}
	return nil
}

func (r *GormOfferingRepository) UpdateStatus(ctx context.Context, id string, status domain.OfferingStatus) error {
	err := r.db.WithContext(ctx).
		Model(&OfferingModel{}).
		Where("id = ?", id).
		Update("status", string(status)).Error
	return errors.Wrap(err, "update offering status")
}

// GormItemRepository 是 domain.ItemRepository 的 GORM 实现。
type GormItemRepository struct {
	db *gorm.DB
}

func NewGormItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

// ListIDsByOffering 返回活动下全部藏品 ID，按编号排序，用于初始化物品池。
func (r *GormItemRepository) ListIDsByOffering(ctx context.Context, offeringID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&ItemModel{}).
		Where("offering_id = ?", offeringID).
		Order("serial ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list item ids")
	}
	return ids, nil
}
