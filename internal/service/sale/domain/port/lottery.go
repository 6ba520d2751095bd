package port

import "context"

// DrawOutcome 是开奖的业务结果。
type DrawOutcome int

const (
	DrawSelected DrawOutcome = iota + 1
	// DrawNoParticipants 无人登记。这是正常的业务结局，不是故障；
	// 此时不会创建中签集合，后续任何人抢购都会得到 NOT_QUALIFIED。
	DrawNoParticipants
	// DrawAlreadyDone 中签集合已存在。抽样两次会改变成员，
	// 所以开奖刻意设计为不可重入。
	DrawAlreadyDone
)

func (o DrawOutcome) String() string {
	switch o {
	case DrawSelected:
		return "SELECTED"
	case DrawNoParticipants:
		return "NO_PARTICIPANTS"
	case DrawAlreadyDone:
		return "ALREADY_DONE"
	default:
		return "UNKNOWN"
	}
}

// LotteryService 是抽签登记与开奖的出站端口。
type LotteryService interface {
	// Register 将候选人加入抽签池，返回是否为新增成员。
	// 重复登记是无害的幂等操作，不是错误。截止时间由应用层校验。
	Register(ctx context.Context, offeringID, candidateID string) (bool, error)

	// DrawCount 返回当前抽签池大小，池不存在时为 0。
	DrawCount(ctx context.Context, offeringID string) (int, error)

	// Select 从抽签池中不放回地抽取至多 targetSize 个成员写入中签集合，
	// 返回实际抽中数。整个抽样在存储层原子完成。
	Select(ctx context.Context, offeringID string, targetSize int) (DrawOutcome, int, error)

	// EligibleCount 返回中签集合大小，集合不存在时为 0。
	EligibleCount(ctx context.Context, offeringID string) (int, error)
}
