package domain

import "context"

// OperationRepository 持久化链上操作的追踪记录。
type OperationRepository interface {
	Save(ctx context.Context, op *Operation) error
	FindByID(ctx context.Context, id string) (*Operation, error)
	// ListUnfinished 返回所有非终态的操作，进程重启后恢复轮询。
	ListUnfinished(ctx context.Context) ([]*Operation, error)
}

// ResultApplier 将已确认的链上结果落到本地实体。
// 所有方法都必须幂等：重复应用同一结果是无害的 no-op。
type ResultApplier interface {
	// ApplyClassCreated 回填活动的链上资产类别 ID（仅当尚未回填）。
	ApplyClassCreated(ctx context.Context, offeringID, assetClassID string) error
	// ApplyItemBound 回填藏品的 NFT 标识（仅当尚未回填）。
	ApplyItemBound(ctx context.Context, itemID, nftID, txHash string) error
}
