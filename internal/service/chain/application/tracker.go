package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/logger"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/metrics"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain/port"
)

// RetryPolicy 控制轮询节奏。每次查询有独立的超时，
// 整体次数由 MaxAttempts 封顶，二者互不混淆。
type RetryPolicy struct {
	InitialDelay   time.Duration // 受理后到第一次查询的间隔
	BackoffFactor  float64       // 每次非终局答复后的间隔倍增系数
	AttemptTimeout time.Duration // 单次查询的超时
	MaxAttempts    int           // 查询次数预算，耗尽转 ABANDONED
}

// DefaultRetryPolicy 线上默认值：3s 起步、指数退避、单次 30s、至多 10 次。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay:   3 * time.Second,
		BackoffFactor:  2,
		AttemptTimeout: 30 * time.Second,
		MaxAttempts:    10,
	}
}

// classResult / bindResult 是链网关确认载荷的约定格式。
type classResult struct {
	AssetClassID string `json:"asset_class_id"`
}

type bindResult struct {
	NFTID  string `json:"nft_id"`
	TxHash string `json:"tx_hash"`
}

// Tracker 驱动链上操作的状态机：提交、轮询、落账。
// 链上确认只回填描述性标识，从不阻塞抢购路径；
// 一次操作被放弃也不影响准入与补偿的正确性。
type Tracker struct {
	repo    domain.OperationRepository
	client  port.Client
	applier domain.ResultApplier
	policy  RetryPolicy
	tracer  trace.Tracer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewTracker(repo domain.OperationRepository, client port.Client, applier domain.ResultApplier, policy RetryPolicy, tracer trace.Tracer) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		repo:    repo,
		client:  client,
		applier: applier,
		policy:  policy,
		tracer:  tracer,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Submit 创建一个新的链上操作并开始追踪。
// 操作 ID 即幂等令牌，由本方生成后随提交传给链网关。
func (t *Tracker) Submit(ctx context.Context, kind domain.Kind, offeringID, itemID string) (*domain.Operation, error) {
	ctx, span := t.tracer.Start(ctx, "chain.Submit")
	defer span.End()

	op := domain.NewOperation(uuid.New().String(), kind, offeringID, itemID)
	span.SetAttributes(
		attribute.String("operation.id", op.ID),
		attribute.String("operation.kind", string(kind)),
	)

	if err := t.repo.Save(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to persist chain operation: %w", err)
	}
	if err := t.client.Submit(ctx, op); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chain gateway rejected submission: %w", err)
	}
	if err := op.MarkPolling(); err != nil {
		return nil, err
	}
	if err := t.repo.Save(ctx, op); err != nil {
		return nil, err
	}

	// 轮询 goroutine 会继续修改 op，交给调用方的是此刻的快照
	snapshot := *op
	t.watch(op)
	return &snapshot, nil
}

// Recover 在进程启动时恢复所有非终态操作的追踪。
// submitted 状态说明提交後进程崩溃：同一令牌重放提交是安全的。
func (t *Tracker) Recover(ctx context.Context) error {
	ops, err := t.repo.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.State == domain.StateSubmitted {
			if err := t.client.Submit(ctx, op); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("operation_id", op.ID).Msg("resubmission failed, will retry on next start")
				continue
			}
			if err := op.MarkPolling(); err != nil {
				continue
			}
			if err := t.repo.Save(ctx, op); err != nil {
				continue
			}
		}
		t.watch(op)
	}
	logger.Ctx(ctx).Info().Int("count", len(ops)).Msg("chain operations recovered")
	return nil
}

// Close 停止所有轮询并等待 goroutine 退出。
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) watch(op *domain.Operation) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.poll(op)
	}()
}

// poll 是状态机的内核。答复"尚未终局"时按指数退避继续；
// 确定性错误立刻转 FAILED；预算耗尽转 ABANDONED。
func (t *Tracker) poll(op *domain.Operation) {
	delay := t.policy.InitialDelay

	for op.Attempts < t.policy.MaxAttempts {
		select {
		case <-t.baseCtx.Done():
			return
		case <-time.After(delay):
		}

		op.RecordAttempt()
		metrics.ChainPollsTotal.Inc()

		attemptCtx, cancel := context.WithTimeout(t.baseCtx, t.policy.AttemptTimeout)
		result, err := t.client.Query(attemptCtx, op.ID)
		cancel()

		if err != nil {
			// 单次查询失败（超时/网络）计入预算，退避后再试
			logger.Ctx(t.baseCtx).Warn().Err(err).
				Str("operation_id", op.ID).
				Int("attempt", op.Attempts).
				Msg("chain status query failed")
			t.persist(op)
			delay = t.backoff(delay)
			continue
		}

		switch result.Status {
		case port.StatusPending:
			t.persist(op)
			delay = t.backoff(delay)

		case port.StatusConfirmed:
			if err := t.apply(op, result.Payload); err != nil {
				// 落账失败不终结操作，下一次查询会重新应用（应用是幂等的）
				logger.Ctx(t.baseCtx).Error().Err(err).
					Str("operation_id", op.ID).
					Msg("failed to apply confirmed result")
				t.persist(op)
				delay = t.backoff(delay)
				continue
			}
			if err := op.MarkConfirmed(result.Payload); err == nil {
				t.persist(op)
			}
			metrics.ChainOperationsTotal.WithLabelValues(string(domain.StateConfirmed)).Inc()
			return

		case port.StatusFailed:
			if err := op.MarkFailed(result.ErrCode); err == nil {
				t.persist(op)
			}
			metrics.ChainOperationsTotal.WithLabelValues(string(domain.StateFailed)).Inc()
			// 不吞错：错误码已落到操作记录，发起方可查询
			logger.Ctx(t.baseCtx).Error().
				Str("operation_id", op.ID).
				Str("chain_error", result.ErrCode).
				Msg("chain operation failed definitively")
			return
		}
	}

	if err := op.MarkAbandoned(); err == nil {
		t.persist(op)
	}
	metrics.ChainOperationsTotal.WithLabelValues(string(domain.StateAbandoned)).Inc()
	logger.Ctx(t.baseCtx).Error().
		Str("operation_id", op.ID).
		Int("attempts", op.Attempts).
		Msg("chain operation abandoned: attempt budget exhausted")
}

// apply 将确认载荷写入目标本地实体。对已回填的实体重复应用是 no-op。
func (t *Tracker) apply(op *domain.Operation, payload string) error {
	ctx, cancel := context.WithTimeout(t.baseCtx, 10*time.Second)
	defer cancel()

	switch op.Kind {
	case domain.KindCreateClass:
		var result classResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return fmt.Errorf("malformed class creation payload: %w", err)
		}
		return t.applier.ApplyClassCreated(ctx, op.OfferingID, result.AssetClassID)

	case domain.KindBindItem:
		var result bindResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return fmt.Errorf("malformed item binding payload: %w", err)
		}
		return t.applier.ApplyItemBound(ctx, op.ItemID, result.NFTID, result.TxHash)

	case domain.KindProvisionItems:
		// 铸造额度只存在于链侧，本地无需落账
		return nil

	default:
		return fmt.Errorf("unknown operation kind: %s", op.Kind)
	}
}

func (t *Tracker) backoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * t.policy.BackoffFactor)
	if next < current {
		// 倍增系数配置异常时兜底，保持原间隔
		return current
	}
	return next
}

func (t *Tracker) persist(op *domain.Operation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.repo.Save(ctx, op); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("operation_id", op.ID).Msg("failed to persist operation state")
	}
}
