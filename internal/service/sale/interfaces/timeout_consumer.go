package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/logger"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/mq"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/application"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
)

// TimeoutReader 抽象 kafka.Reader 的取消息/提交能力。
type TimeoutReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TimeoutProcessor 处理一条到期的支付超时检查任务。
type TimeoutProcessor interface {
	ProcessTimeoutCheck(ctx context.Context, event *domain.TradeTimeoutCheckEvent) error
}

// TimeoutConsumerAdapter 是一个驱动适配器：监听支付超时检查主题，
// 到期任务交给应用服务判断是否补偿。
//
// 提交 offset 意味着这次补偿被永久消费掉，因此只有处理成功
// （或确认不再可能处理）的消息才提交。处理失败时在原消息上
// 带退避重试：FetchMessage 已推进组内游标，放弃这条消息去取
// 下一条同样会丢补偿。
type TimeoutConsumerAdapter struct {
	reader    TimeoutReader
	processor TimeoutProcessor
	backoff   time.Duration
	wg        sync.WaitGroup
	stopped   bool
}

// NewTimeoutConsumerAdapter 创建一个新的Kafka消费者适配器。
func NewTimeoutConsumerAdapter(reader TimeoutReader, processor TimeoutProcessor) *TimeoutConsumerAdapter {
	return &TimeoutConsumerAdapter{
		reader:    reader,
		processor: processor,
		backoff:   3 * time.Second,
	}
}

// Start 开始监听Kafka主题。这是一个长期运行的方法。
func (a *TimeoutConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Msg("timeout consumer started")
		for {
			if a.stopped {
				return
			}
			// 使用FetchMessage而不是ReadMessage，以便控制提交流程
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("timeout consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			newCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			if !a.processUntilDone(newCtx, msg) {
				return
			}

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()

	return nil
}

// Stop 优雅地停止消费者。
func (a *TimeoutConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("timeout consumer stopped")
}

// processUntilDone 在同一条消息上重试处理，直到成功或进程退出。
// 返回 false 表示上下文已取消，消息未处理完也未提交，
// 重启后会重新投递，补偿自身幂等。
func (a *TimeoutConsumerAdapter) processUntilDone(ctx context.Context, msg kafka.Message) bool {
	for {
		if a.processMessage(ctx, msg) {
			return true
		}
		select {
		case <-time.After(a.backoff):
		case <-ctx.Done():
			return false
		}
	}
}

// processMessage 反序列化消息并调用应用服务，返回是否可以提交。
func (a *TimeoutConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) bool {
	var event domain.TradeTimeoutCheckEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 无法解析的消息跳过并提交，生产环境应移入死信队列
		logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal timeout event, skipping")
		return true
	}

	err := a.processor.ProcessTimeoutCheck(ctx, &event)
	if err == nil {
		return true
	}
	if errors.Is(err, application.ErrOfferingHalted) {
		// 活动已停止受理，这次补偿不再可能执行
		logger.Ctx(ctx).Warn().Str("trade_id", event.TradeID).Msg("offering halted, dropping timeout check")
		return true
	}
	// 基础设施故障：不提交，留在原消息上重试
	logger.Ctx(ctx).Error().Err(err).Str("trade_id", event.TradeID).Msg("failed to process timeout check, will retry")
	return false
}
