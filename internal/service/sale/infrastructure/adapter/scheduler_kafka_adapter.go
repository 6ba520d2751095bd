package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/mq"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
)

const (
	// 延迟消息先进入延迟主题，由 delay-scheduler 轮询到期后
	// 按 real-topic header 投递到真实主题
	delayTopic       = "delay_topic_5m"
	TimeoutTopic     = "trade-timeout-check-topic"
	RealTopicHeader  = "real-topic"
	DelayStampHeader = "delay-timestamp"
)

// SchedulerKafkaAdapter 实现了 port.DelayScheduler 接口。
type SchedulerKafkaAdapter struct {
	delayWriter *kafka.Writer
	grace       time.Duration
}

// NewSchedulerKafkaAdapter 创建一个新的延迟任务调度器适配器。
func NewSchedulerKafkaAdapter(brokers []string, grace time.Duration) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{
		delayWriter: mq.NewKafkaWriter(brokers, delayTopic),
		grace:       grace,
	}
}

// SchedulePaymentTimeout 实现了发送延迟消息的逻辑。
func (a *SchedulerKafkaAdapter) SchedulePaymentTimeout(ctx context.Context, event *domain.TradeTimeoutCheckEvent) error {
	event.TraceID = trace.SpanFromContext(ctx).SpanContext().TraceID().String()
	taskBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	deliveryAt := event.ClaimedAt.Add(a.grace).Format(time.RFC3339)

	msg := kafka.Message{
		Key:   []byte(event.TradeID),
		Value: taskBytes,
		Headers: []kafka.Header{
			{Key: RealTopicHeader, Value: []byte(TimeoutTopic)},
			{Key: DelayStampHeader, Value: []byte(deliveryAt)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.delayWriter.WriteMessages(ctx, msg)
}

// Close 关闭底层的Kafka writer。
func (a *SchedulerKafkaAdapter) Close() error {
	return a.delayWriter.Close()
}
