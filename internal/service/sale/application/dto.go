package application

import "github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"

// ClaimRequest 是一次抢购请求。买家属性由上游鉴权层透传，
// 供活动配置的资格规则评估。
type ClaimRequest struct {
	OfferingID string
	BuyerID    string
	Buyer      port.BuyerFact
}

// ClaimResult 携带抢购结果。成功时 ItemID / TradeID 非空。
type ClaimResult struct {
	Outcome port.ClaimOutcome `json:"outcome"`
	ItemID  string            `json:"item_id,omitempty"`
	TradeID string            `json:"trade_id,omitempty"`
}

// ReleaseResult 携带补偿结果。
type ReleaseResult struct {
	Outcome port.ReleaseOutcome `json:"outcome"`
}

// DrawResult 携带开奖结果。
type DrawResult struct {
	Outcome  port.DrawOutcome `json:"outcome"`
	Selected int              `json:"selected"`
}
