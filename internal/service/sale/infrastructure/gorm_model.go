package infrastructure

import "time"

// OfferingModel 是发售活动的数据库模型。
// 目录服务拥有这张表的 CRUD，本核心读取时间窗与限购参数，
// 并在链上操作确认后回填 asset_class_id。
type OfferingModel struct {
	ID                string    `gorm:"primaryKey;size:64"`
	Title             string    `gorm:"size:255;not null"`
	PublishCount      int       `gorm:"not null"`
	PurchaseLimit     int       `gorm:"default:1"`
	SaleAt            time.Time `gorm:"index"`
	DrawAt            time.Time
	DrawEndAt         time.Time `gorm:"index"`
	QualificationRule string    `gorm:"size:512"`
	AssetClassID      string    `gorm:"size:128"`
	Status            string    `gorm:"size:32;index;default:'draft'"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (OfferingModel) TableName() string { return "offerings" }

// ItemModel 是具体藏品的数据库模型，链上字段由链上操作异步回填。
type ItemModel struct {
	ID         string `gorm:"primaryKey;size:96"`
	OfferingID string `gorm:"size:64;index;not null"`
	Serial     int    `gorm:"not null"`
	NFTID      string `gorm:"size:128"`
	TxHash     string `gorm:"size:128"`
	OwnerID    string `gorm:"size:64;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ItemModel) TableName() string { return "items" }
