package port

import (
	"context"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain"
)

// QueryStatus 是链网关对一次操作的答复状态。
type QueryStatus string

const (
	StatusPending   QueryStatus = "pending"
	StatusConfirmed QueryStatus = "confirmed"
	StatusFailed    QueryStatus = "failed"
)

// QueryResult 是一次状态查询的结果。
// Confirmed 时 Payload 携带链侧产物（如新铸的类别/NFT 标识）；
// Failed 时 ErrCode 携带链侧的确定性错误码。
type QueryResult struct {
	Status  QueryStatus
	Payload string
	ErrCode string
}

// Client 是链网关的出站端口。
// Submit 以操作自身的 ID 作为幂等令牌：同一令牌重复提交，
// 链网关保证只生效一次。
type Client interface {
	Submit(ctx context.Context, op *domain.Operation) error
	Query(ctx context.Context, operationID string) (*QueryResult, error)
}
