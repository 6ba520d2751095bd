package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/application"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
)

// ---- 测试替身 ----

type fakeTimeoutReader struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits []kafka.Message
	closed  chan struct{}
}

func newFakeTimeoutReader(msgs ...kafka.Message) *fakeTimeoutReader {
	return &fakeTimeoutReader{queue: msgs, closed: make(chan struct{})}
}

func (r *fakeTimeoutReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	// 队列空时模拟真实 Reader 的阻塞行为
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, errors.New("reader closed")
	}
}

func (r *fakeTimeoutReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *fakeTimeoutReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func (r *fakeTimeoutReader) committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commits)
}

type scriptedProcessor struct {
	mu    sync.Mutex
	errs  []error // 依次返回，用尽后返回 nil
	calls int
}

func (p *scriptedProcessor) ProcessTimeoutCheck(ctx context.Context, event *domain.TradeTimeoutCheckEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func (p *scriptedProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func timeoutMessage(t *testing.T, tradeID string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(&domain.TradeTimeoutCheckEvent{
		TradeID:    tradeID,
		OfferingID: "off-1",
		BuyerID:    "alice",
		ItemID:     "off-1#1",
	})
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func startConsumer(t *testing.T, reader *fakeTimeoutReader, processor *scriptedProcessor) *TimeoutConsumerAdapter {
	t.Helper()
	a := NewTimeoutConsumerAdapter(reader, processor)
	a.backoff = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() {
		cancel()
		a.Stop(context.Background())
	})
	return a
}

// ---- 用例 ----

func TestTimeoutConsumerCommitsOnSuccess(t *testing.T) {
	reader := newFakeTimeoutReader(timeoutMessage(t, "trade-1"))
	processor := &scriptedProcessor{}
	startConsumer(t, reader, processor)

	assert.Eventually(t, func() bool {
		return reader.committed() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, processor.callCount())
}

func TestTimeoutConsumerRetriesSameMessageOnInfraError(t *testing.T) {
	// 处理失败的补偿不能被提交掉：提交即永久丢失。
	// 必须在同一条消息上重试到成功，再提交。
	reader := newFakeTimeoutReader(timeoutMessage(t, "trade-1"))
	infraErr := errors.New("order service unavailable")
	processor := &scriptedProcessor{errs: []error{infraErr, infraErr}}
	startConsumer(t, reader, processor)

	assert.Eventually(t, func() bool {
		return reader.committed() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, processor.callCount(), "前两次失败在同一条消息上重试")
}

func TestTimeoutConsumerNoCommitWhileFailing(t *testing.T) {
	reader := newFakeTimeoutReader(timeoutMessage(t, "trade-1"))
	processor := &scriptedProcessor{errs: []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	a := NewTimeoutConsumerAdapter(reader, processor)
	a.backoff = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	// 失败重试期间 offset 不前进
	assert.Eventually(t, func() bool {
		return processor.callCount() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, reader.committed())

	cancel()
	a.Stop(context.Background())
	assert.Zero(t, reader.committed(), "退出时未处理完的消息不提交，重启后重新投递")
}

func TestTimeoutConsumerDropsHaltedOffering(t *testing.T) {
	// 活动已停止受理时该补偿永远不可能执行，提交避免卡死分区
	reader := newFakeTimeoutReader(timeoutMessage(t, "trade-1"))
	processor := &scriptedProcessor{errs: []error{application.ErrOfferingHalted}}
	startConsumer(t, reader, processor)

	assert.Eventually(t, func() bool {
		return reader.committed() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, processor.callCount())
}

func TestTimeoutConsumerSkipsMalformedMessage(t *testing.T) {
	reader := newFakeTimeoutReader(kafka.Message{Value: []byte("not-json")}, timeoutMessage(t, "trade-2"))
	processor := &scriptedProcessor{}
	startConsumer(t, reader, processor)

	assert.Eventually(t, func() bool {
		return reader.committed() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, processor.callCount(), "坏消息不进入应用服务")
}
