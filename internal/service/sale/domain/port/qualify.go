package port

import "context"

// BuyerFact 是资格规则的输入事实，由上游鉴权层透传。
type BuyerFact struct {
	ID       string `json:"id"`
	Verified bool   `json:"verified"` // 是否已完成实名认证
	Level    int    `json:"level"`    // 账号等级
}

// Qualifier 评估活动配置的购买资格规则。
// ruleSrc 为空时视为不限制。规则本身的语法错误属于配置错误，
// 以 error 返回，不映射为业务拒绝。
type Qualifier interface {
	Evaluate(ctx context.Context, ruleSrc string, fact BuyerFact) (bool, error)
}
