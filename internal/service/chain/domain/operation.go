package domain

import (
	"errors"
	"fmt"
	"time"
)

// State 是链上操作的追踪状态。
// 状态机: SUBMITTED → POLLING → {CONFIRMED, FAILED, ABANDONED}。
// 任何转移都不能跳过 POLLING；三个终态不可再变。
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// Terminal 判断状态是否为终态。
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateAbandoned
}

// Kind 是链上操作的种类。
type Kind string

const (
	// KindCreateClass 创建链上资产类别，确认后回填活动的 asset_class_id
	KindCreateClass Kind = "create_class"
	// KindProvisionItems 按发行量在链上登记铸造额度
	KindProvisionItems Kind = "provision_items"
	// KindBindItem 将一件具体藏品与链上 NFT 绑定
	KindBindItem Kind = "bind_item"
)

var (
	ErrTerminalState     = errors.New("chain operation is in a terminal state")
	ErrOperationNotFound = errors.New("chain operation not found")
)

// Operation 代表一次长时间运行的链上异步操作。
// ID 同时是提交给链网关的幂等令牌。
type Operation struct {
	ID         string
	Kind       Kind
	OfferingID string
	ItemID     string // 仅 KindBindItem 使用
	Attempts   int
	State      State
	Result     string // 终态为 confirmed 时的结果载荷
	Error      string // 终态为 failed 时链侧返回的错误码
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOperation 创建一个待提交的操作。
func NewOperation(id string, kind Kind, offeringID, itemID string) *Operation {
	now := time.Now()
	return &Operation{
		ID:         id,
		Kind:       kind,
		OfferingID: offeringID,
		ItemID:     itemID,
		State:      StateSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkPolling 记录链网关已受理，进入轮询阶段。
func (o *Operation) MarkPolling() error {
	if o.State != StateSubmitted {
		return fmt.Errorf("cannot start polling from state %s", o.State)
	}
	o.State = StatePolling
	o.UpdatedAt = time.Now()
	return nil
}

// RecordAttempt 记一次状态查询。
func (o *Operation) RecordAttempt() {
	o.Attempts++
	o.UpdatedAt = time.Now()
}

// MarkConfirmed 记录链侧成功及其结果载荷。
func (o *Operation) MarkConfirmed(result string) error {
	if err := o.ensurePolling(); err != nil {
		return err
	}
	o.State = StateConfirmed
	o.Result = result
	o.UpdatedAt = time.Now()
	return nil
}

// MarkFailed 记录链侧返回的确定性错误。
func (o *Operation) MarkFailed(chainErr string) error {
	if err := o.ensurePolling(); err != nil {
		return err
	}
	o.State = StateFailed
	o.Error = chainErr
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAbandoned 记录尝试预算耗尽。
// 与 FAILED 不同：链侧从未给出终局答复，调用方可以换令牌重试。
func (o *Operation) MarkAbandoned() error {
	if err := o.ensurePolling(); err != nil {
		return err
	}
	o.State = StateAbandoned
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Operation) ensurePolling() error {
	if o.State.Terminal() {
		return ErrTerminalState
	}
	if o.State != StatePolling {
		return fmt.Errorf("cannot finalize from state %s", o.State)
	}
	return nil
}
