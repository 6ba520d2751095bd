package port

import (
	"context"
	"errors"
)

var (
	// ErrInventoryCorrupted 表示脚本内检测到物品池与库存计数不一致。
	// 按设计这不可能发生，一旦出现属于致命的实现/配置错误，
	// 对应活动必须停止受理，而不是返回带误导性的业务结果。
	ErrInventoryCorrupted = errors.New("item pool disagrees with stock counter")
)

// ClaimOutcome 是抢购的业务结果，四种拒绝彼此独立、绝不混淆。
type ClaimOutcome int

const (
	ClaimSuccess ClaimOutcome = iota + 1
	ClaimNotYetOpen
	ClaimNoStock
	ClaimNotQualified
	ClaimLimitReached
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimSuccess:
		return "SUCCESS"
	case ClaimNotYetOpen:
		return "NOT_YET_OPEN"
	case ClaimNoStock:
		return "NO_STOCK"
	case ClaimNotQualified:
		return "NOT_QUALIFIED"
	case ClaimLimitReached:
		return "LIMIT_REACHED"
	default:
		return "UNKNOWN"
	}
}

// ReleaseOutcome 是补偿的业务结果。
type ReleaseOutcome int

const (
	ReleaseSuccess ReleaseOutcome = iota + 1
	ReleaseNothingToRelease
)

func (o ReleaseOutcome) String() string {
	switch o {
	case ReleaseSuccess:
		return "SUCCESS"
	case ReleaseNothingToRelease:
		return "NOTHING_TO_RELEASE"
	default:
		return "UNKNOWN"
	}
}

// AdmissionService 是抢购准入原语的出站端口。
//
// Claim 和 Release 各自是一个不可分割的原子单元：任何两个并发调用
// 之间都不能观察到中间状态，等价于存储层把同一活动上的所有
// claim/release 串行化。实现方不得用进程内锁代替存储层的原子性。
type AdmissionService interface {
	// Claim 尝试为 buyerID 抢购一件藏品。
	// 成功时返回被分配的具体藏品 ID，失败时返回对应的拒绝结果。
	// 业务拒绝不作为 error 返回；error 仅表示基础设施故障或
	// ErrInventoryCorrupted。
	Claim(ctx context.Context, offeringID, buyerID string, limit int) (ClaimOutcome, string, error)

	// Release 是 Claim 的精确逆操作：恢复库存、回退买家计数、
	// 将 itemID 放回物品池。买家计数已为 0 时不做任何修改。
	Release(ctx context.Context, offeringID, buyerID, itemID string) (ReleaseOutcome, error)

	// Prepare 在开售前初始化库存计数和物品池，两者在同一 pipeline 中写入。
	Prepare(ctx context.Context, offeringID string, itemIDs []string) error

	// Stock 返回当前剩余库存，键不存在时为 0。
	Stock(ctx context.Context, offeringID string) (int, error)

	// Cleanup 一次性删除该活动的全部五个命名空间键。
	Cleanup(ctx context.Context, offeringID string) error
}
