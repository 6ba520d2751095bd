// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/bootstrap"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/logger"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/mq"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/tracing"
)

const (
	serviceName      = "delay-scheduler"
	realTopicHeader  = "real-topic"
	delayStampHeader = "delay-timestamp"
	pollInterval     = 1 * time.Second
)

// 支持的延迟级别。每个级别是一个独立主题，消息按进入顺序到期，
// 因此队头未到期时后续消息必然也未到期。
var delayLevels = map[string]time.Duration{
	"delay_topic_5s": 5 * time.Second,
	"delay_topic_1m": 1 * time.Minute,
	"delay_topic_5m": 5 * time.Minute,
}

var tracer = otel.Tracer(serviceName)

// delayReader 抽象消费者组 Reader 的取消息/提交能力。
type delayReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// delayWriter 抽象真实主题的写入端。
type delayWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// levelPoller 轮询一个延迟级别的主题，把到期消息搬运到真实主题。
type levelPoller struct {
	level     string
	delay     time.Duration
	reader    delayReader
	newWriter func(realTopic string) delayWriter
	now       func() time.Time

	writerMu sync.Mutex
	writers  map[string]delayWriter // key: 真实主题
}

func newLevelPoller(brokers []string, level string, delay time.Duration) *levelPoller {
	return &levelPoller{
		level:  level,
		delay:  delay,
		reader: mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level),
		newWriter: func(realTopic string) delayWriter {
			return mq.NewKafkaWriter(brokers, realTopic)
		},
		now:     func() time.Time { return time.Now().UTC() },
		writers: make(map[string]delayWriter),
	}
}

func (p *levelPoller) run(ctx context.Context) {
	logger.Ctx(ctx).Info().Str("level", p.level).Dur("poll_interval", pollInterval).Msg("delay poller started")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	defer p.reader.Close()
	defer p.closeWriters()

	for {
		select {
		case <-ticker.C:
			p.drainDue(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Str("level", p.level).Msg("delay poller shutting down")
			return
		}
	}
}

// drainDue 从队头开始搬运到期消息。
//
// FetchMessage 会推进消费者组的会话内游标：取出过的消息在本会话中
// 不会再次投递，即使没有提交。因此队头未到期时必须原地等到到期再
// 搬运，放弃这条消息等于永久丢掉这次延迟投递。同级主题内到期时间
// 单调递增，等待队头不会让后续消息额外变晚。
func (p *levelPoller) drainDue(parentCtx context.Context) {
	for {
		msg, err := p.reader.FetchMessage(parentCtx)
		if err != nil {
			// 没有新消息或上下文取消，等待下一个 tick
			return
		}

		msgCtx := mq.ExtractTraceContext(parentCtx, msg.Headers)
		ctx, span := tracer.Start(msgCtx, "scheduler.DrainDue", trace.WithAttributes(
			attribute.String("delay.level", p.level),
		))

		if deliveryAt := p.deliveryTime(msg); p.now().Before(deliveryAt) {
			span.AddEvent("WaitingForDueTime", trace.WithAttributes(
				attribute.String("delivery.at", deliveryAt.Format(time.RFC3339)),
			))
			if !p.waitUntil(parentCtx, deliveryAt) {
				// 进程退出。消息未提交，重启后重新投递
				span.End()
				return
			}
		}

		realTopic := headerValue(msg.Headers, realTopicHeader)
		if realTopic == "" {
			// 缺少目标主题的消息无法投递，提交掉避免反复消费
			logger.Ctx(ctx).Error().Str("level", p.level).Msg("message missing real-topic header, skipping")
			if err := p.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit skipped message")
			}
			span.End()
			continue
		}

		if err := p.republish(ctx, realTopic, msg); err != nil {
			// 投递失败不提交 offset，重启后重试
			logger.Ctx(ctx).Error().Err(err).Str("real_topic", realTopic).Msg("failed to republish due message")
			span.RecordError(err)
			span.SetStatus(codes.Error, "republish failed")
			span.End()
			return
		}

		if err := p.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("level", p.level).Msg("failed to commit after republish")
			span.RecordError(err)
			span.End()
			return
		}
		logger.Ctx(ctx).Info().Str("level", p.level).Str("real_topic", realTopic).Msg("due message republished")
		span.AddEvent("MessageRepublished", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

// waitUntil 阻塞到 at 时刻，返回 false 表示上下文先被取消。
func (p *levelPoller) waitUntil(ctx context.Context, at time.Time) bool {
	d := at.Sub(p.now())
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// deliveryTime 优先使用生产方写入的绝对到期时间戳，
// 缺失时退回"进入主题时间 + 级别延迟"。
func (p *levelPoller) deliveryTime(msg kafka.Message) time.Time {
	if stamp := headerValue(msg.Headers, delayStampHeader); stamp != "" {
		if at, err := time.Parse(time.RFC3339, stamp); err == nil {
			return at
		}
	}
	return msg.Time.Add(p.delay)
}

func (p *levelPoller) republish(ctx context.Context, realTopic string, msg kafka.Message) error {
	p.writerMu.Lock()
	writer, ok := p.writers[realTopic]
	if !ok {
		writer = p.newWriter(realTopic)
		p.writers[realTopic] = writer
	}
	p.writerMu.Unlock()

	outMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}
	mq.InjectTraceContext(ctx, &outMsg.Headers)
	return writer.WriteMessages(ctx, outMsg)
}

func (p *levelPoller) closeWriters() {
	p.writerMu.Lock()
	defer p.writerMu.Unlock()
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func main() {
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, cfg.App.LogLevel)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")

	var wg sync.WaitGroup
	for level, delay := range delayLevels {
		wg.Add(1)
		poller := newLevelPoller(brokers, level, delay)
		go func() {
			defer wg.Done()
			poller.run(ctx)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()
	wg.Wait()
}
