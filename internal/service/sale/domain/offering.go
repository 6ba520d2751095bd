package domain

import (
	"errors"
	"math"
	"time"
)

// OfferingStatus 表示一次发售活动的生命周期状态。
type OfferingStatus string

const (
	OfferingStatusDraft    OfferingStatus = "draft"
	OfferingStatusOnSale   OfferingStatus = "on_sale"
	OfferingStatusFinished OfferingStatus = "finished"
	// OfferingStatusHalted 表示检测到库存不变式被破坏，该活动停止受理。
	// 这是实现错误的兜底，不是业务结果。
	OfferingStatusHalted OfferingStatus = "halted"
)

// Offering 是一次发售活动的聚合根。
// 活动目录（藏品、发行方等）由目录服务维护，本核心只读取
// 时间窗和限购参数，并独占维护 Redis 中的库存计数。
type Offering struct {
	ID           string
	Title        string
	PublishCount int // 本次发行的总件数，永不变化
	// PurchaseLimit 每位买家允许的成功抢购次数，默认 1
	PurchaseLimit int
	SaleAt        time.Time // 最早可抢购时间
	DrawAt        time.Time // 抽签登记开始时间
	DrawEndAt     time.Time // 抽签登记截止、开奖时间
	// QualificationRule 可选的 CEL 购买资格表达式，空串表示不限制
	QualificationRule string
	// AssetClassID 链上资产类别 ID，由链上操作异步回填
	AssetClassID string
	Status       OfferingStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrOfferingNotFound = errors.New("offering not found")
	ErrItemNotFound     = errors.New("item not found")
)

// SaleOpen 判断此刻是否允许抢购。
func (o *Offering) SaleOpen(now time.Time) bool {
	return !now.Before(o.SaleAt)
}

// DrawClosed 判断抽签登记是否已截止。
func (o *Offering) DrawClosed(now time.Time) bool {
	return !now.Before(o.DrawEndAt)
}

// Limit 返回生效的限购数，兼容历史数据里的零值。
func (o *Offering) Limit() int {
	if o.PurchaseLimit <= 0 {
		return 1
	}
	return o.PurchaseLimit
}

// LuckyTarget 计算中签集合的目标大小。
// 超发一定倍数以对冲中签后不来抢购的流失。
func (o *Offering) LuckyTarget(multiplier float64) int {
	if multiplier <= 0 {
		multiplier = 2
	}
	return int(math.Ceil(multiplier * float64(o.PublishCount)))
}

// Halt 将活动标记为停止受理。
func (o *Offering) Halt() {
	o.Status = OfferingStatusHalted
	o.UpdatedAt = time.Now()
}

// Item 是一件具体的、带独立编号的藏品。
// 同一活动下的 Item 同质但各有编号，链上信息异步回填。
type Item struct {
	ID         string // 形如 <offering>#<serial>
	OfferingID string
	Serial     int
	NFTID      string // 链上铸造完成后回填
	TxHash     string
	OwnerID    string // 订单完成后由目录服务回填
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
