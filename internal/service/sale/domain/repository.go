package domain

import (
	"context"
	"time"
)

// OfferingRepository 是发售活动的仓储接口，由目录库的 GORM 实现提供。
type OfferingRepository interface {
	FindByID(ctx context.Context, id string) (*Offering, error)
	// ListUndrawn 返回开奖时间晚于 after 的活动，用于进程重启后重建定时器。
	ListUndrawn(ctx context.Context, after time.Time) ([]*Offering, error)
	Save(ctx context.Context, offering *Offering) error
	UpdateStatus(ctx context.Context, id string, status OfferingStatus) error
}

// ItemRepository 提供活动下具体藏品的读取与链上信息回填。
type ItemRepository interface {
	ListIDsByOffering(ctx context.Context, offeringID string) ([]string, error)
}
