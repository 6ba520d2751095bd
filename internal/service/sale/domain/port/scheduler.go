package port

import (
	"context"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
)

// DelayScheduler 是延迟任务调度器的出站端口。
type DelayScheduler interface {
	// SchedulePaymentTimeout 安排一次未来的支付超时检查。
	// 任务到期后由消费端决定是否触发补偿。
	SchedulePaymentTimeout(ctx context.Context, event *domain.TradeTimeoutCheckEvent) error
}

// SaleEventProducer 将发售动态投递到事件流，供推送网关广播。
type SaleEventProducer interface {
	Publish(ctx context.Context, event *domain.SaleEvent) error
}

// OrderStatusChecker 查询订单协作方的支付状态。
// 订单记录本身由目录服务维护，本核心只在补偿前确认一次。
type OrderStatusChecker interface {
	// Paid 返回 tradeID 对应的订单是否已完成支付。
	Paid(ctx context.Context, tradeID string) (bool, error)
}
