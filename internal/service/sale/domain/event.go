package domain

import "time"

// TradeTimeoutCheckEvent 是抢购成功后投递到延迟主题的支付超时检查任务。
// 到期后由消费端判断订单是否已支付，未支付则执行补偿。
type TradeTimeoutCheckEvent struct {
	TraceID    string    `json:"trace_id,omitempty"`
	TradeID    string    `json:"trade_id"`
	OfferingID string    `json:"offering_id"`
	BuyerID    string    `json:"buyer_id"`
	ItemID     string    `json:"item_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// SaleEventKind 是推送给前端的发售事件类型。
type SaleEventKind string

const (
	SaleEventClaimed  SaleEventKind = "claimed"
	SaleEventReleased SaleEventKind = "released"
	SaleEventDrawDone SaleEventKind = "draw_done"
)

// SaleEvent 广播给推送网关的发售动态，例如剩余库存变化。
type SaleEvent struct {
	Kind       SaleEventKind `json:"kind"`
	OfferingID string        `json:"offering_id"`
	BuyerID    string        `json:"buyer_id,omitempty"`
	Stock      int           `json:"stock"`
	OccurredAt time.Time     `json:"occurred_at"`
}
