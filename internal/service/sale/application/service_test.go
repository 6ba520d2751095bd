package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/infrastructure/memory"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/timer"
)

// ---- 测试替身 ----

type fakeOfferingRepo struct {
	mu        sync.Mutex
	offerings map[string]*domain.Offering
	statuses  map[string]domain.OfferingStatus
}

func newFakeOfferingRepo(offerings ...*domain.Offering) *fakeOfferingRepo {
	r := &fakeOfferingRepo{
		offerings: make(map[string]*domain.Offering),
		statuses:  make(map[string]domain.OfferingStatus),
	}
	for _, o := range offerings {
		r.offerings[o.ID] = o
	}
	return r
}

func (r *fakeOfferingRepo) FindByID(ctx context.Context, id string) (*domain.Offering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offerings[id]
	if !ok {
		return nil, domain.ErrOfferingNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *fakeOfferingRepo) ListUndrawn(ctx context.Context, after time.Time) ([]*domain.Offering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Offering
	for _, o := range r.offerings {
		if o.DrawEndAt.After(after) {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeOfferingRepo) Save(ctx context.Context, offering *domain.Offering) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offerings[offering.ID] = offering
	return nil
}

func (r *fakeOfferingRepo) UpdateStatus(ctx context.Context, id string, status domain.OfferingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	if o, ok := r.offerings[id]; ok {
		o.Status = status
	}
	return nil
}

func (r *fakeOfferingRepo) statusOf(id string) domain.OfferingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

type fakeItemRepo struct {
	items map[string][]string
}

func (r *fakeItemRepo) ListIDsByOffering(ctx context.Context, offeringID string) ([]string, error) {
	return r.items[offeringID], nil
}

type fakeScheduler struct {
	mu     sync.Mutex
	events []*domain.TradeTimeoutCheckEvent
	err    error
}

func (s *fakeScheduler) SchedulePaymentTimeout(ctx context.Context, event *domain.TradeTimeoutCheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fakeEventProducer struct {
	mu     sync.Mutex
	events []*domain.SaleEvent
}

func (p *fakeEventProducer) Publish(ctx context.Context, event *domain.SaleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeEventProducer) published() []*domain.SaleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.SaleEvent(nil), p.events...)
}

type fakeOrderChecker struct {
	paid map[string]bool
}

func (c *fakeOrderChecker) Paid(ctx context.Context, tradeID string) (bool, error) {
	return c.paid[tradeID], nil
}

type fakeQualifier struct {
	qualified bool
	err       error
}

func (q *fakeQualifier) Evaluate(ctx context.Context, ruleSrc string, fact port.BuyerFact) (bool, error) {
	if ruleSrc == "" {
		return true, nil
	}
	return q.qualified, q.err
}

type inprocessLocker struct {
	mu sync.Mutex
}

func (l *inprocessLocker) WithLock(offeringID string, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// ---- 组装 ----

type fixture struct {
	svc       *SaleApplicationService
	store     *memory.Store
	offerings *fakeOfferingRepo
	items     *fakeItemRepo
	scheduler *fakeScheduler
	events    *fakeEventProducer
	orders    *fakeOrderChecker
	qualifier *fakeQualifier
	timers    *timer.Scheduler
	now       time.Time
}

func newFixture(t *testing.T, offerings ...*domain.Offering) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		offerings: newFakeOfferingRepo(offerings...),
		items:     &fakeItemRepo{items: make(map[string][]string)},
		scheduler: &fakeScheduler{},
		events:    &fakeEventProducer{},
		orders:    &fakeOrderChecker{paid: make(map[string]bool)},
		qualifier: &fakeQualifier{qualified: true},
		timers:    timer.NewScheduler(),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(f.timers.Close)
	f.svc = NewSaleApplicationService(Deps{
		Offerings:       f.offerings,
		Items:           f.items,
		Admission:       f.store,
		Lottery:         f.store,
		Scheduler:       f.scheduler,
		Events:          f.events,
		Orders:          f.orders,
		Qualifier:       f.qualifier,
		Locker:          &inprocessLocker{},
		Timers:          f.timers,
		Tracer:          noop.NewTracerProvider().Tracer("test"),
		LuckyMultiplier: 2,
		Now:             func() time.Time { return f.now },
	})
	return f
}

func onSaleOffering(id string, publishCount int) *domain.Offering {
	return &domain.Offering{
		ID:           id,
		PublishCount: publishCount,
		SaleAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DrawAt:       time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		DrawEndAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:       domain.OfferingStatusOnSale,
	}
}

func (f *fixture) seedSale(t *testing.T, offering *domain.Offering, lucky ...string) {
	t.Helper()
	itemIDs := make([]string, 0, offering.PublishCount)
	for i := 1; i <= offering.PublishCount; i++ {
		itemIDs = append(itemIDs, fmt.Sprintf("%s#%d", offering.ID, i))
	}
	require.NoError(t, f.store.Prepare(context.Background(), offering.ID, itemIDs))
	f.store.SeedLucky(offering.ID, lucky...)
}

func claimReq(offeringID, buyerID string) *ClaimRequest {
	return &ClaimRequest{
		OfferingID: offeringID,
		BuyerID:    buyerID,
		Buyer:      port.BuyerFact{ID: buyerID, Verified: true, Level: 3},
	}
}

// ---- 用例 ----

func TestRegisterBeforeDeadline(t *testing.T) {
	f := newFixture(t, onSaleOffering("off-1", 3))
	f.now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) // 截止前

	added, err := f.svc.Register(context.Background(), "off-1", "alice")
	require.NoError(t, err)
	assert.True(t, added)

	// 重复登记幂等
	added, err = f.svc.Register(context.Background(), "off-1", "alice")
	require.NoError(t, err)
	assert.False(t, added)

	count, err := f.svc.DrawCount(context.Background(), "off-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterAfterDeadline(t *testing.T) {
	f := newFixture(t, onSaleOffering("off-1", 3))
	// fixture 默认时间 12:00 晚于 09:00 截止

	_, err := f.svc.Register(context.Background(), "off-1", "alice")
	assert.ErrorIs(t, err, ErrDrawClosed)
}

func TestClaimNotYetOpen(t *testing.T) {
	f := newFixture(t, onSaleOffering("off-1", 3))
	f.seedSale(t, onSaleOffering("off-1", 3), "alice")
	f.now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) // 开售前

	result, err := f.svc.Claim(context.Background(), claimReq("off-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimNotYetOpen, result.Outcome)
	assert.Empty(t, result.ItemID)
}

// 发行 3 件、4 人中签的完整抢购场景。
func TestClaimScenario(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 3)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "a", "b", "c", "d")

	for _, buyer := range []string{"a", "b", "c"} {
		result, err := f.svc.Claim(ctx, claimReq("off-1", buyer))
		require.NoError(t, err)
		assert.Equal(t, port.ClaimSuccess, result.Outcome)
		assert.NotEmpty(t, result.ItemID)
		assert.NotEmpty(t, result.TradeID)
	}

	// 库存已尽，但 a 的第二次抢购先被限购挡住
	result, err := f.svc.Claim(ctx, claimReq("off-1", "a"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimLimitReached, result.Outcome)

	// d 第一次来，得到的才是 NO_STOCK
	result, err = f.svc.Claim(ctx, claimReq("off-1", "d"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimNoStock, result.Outcome)

	// 三次成功各调度了一次支付超时检查
	assert.Equal(t, 3, f.scheduler.scheduled())
}

func TestClaimUnqualifiedByRule(t *testing.T) {
	offering := onSaleOffering("off-1", 3)
	offering.QualificationRule = "buyer.verified && buyer.level >= 2"
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")
	f.qualifier.qualified = false

	result, err := f.svc.Claim(context.Background(), claimReq("off-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimNotQualified, result.Outcome)

	// 规则拒绝的请求不触碰库存
	stock, err := f.store.Stock(context.Background(), "off-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
}

func TestClaimSchedulerFailureDoesNotRollback(t *testing.T) {
	offering := onSaleOffering("off-1", 1)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")
	f.scheduler.err = errors.New("kafka down")

	result, err := f.svc.Claim(context.Background(), claimReq("off-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimSuccess, result.Outcome)

	stock, err := f.store.Stock(context.Background(), "off-1")
	require.NoError(t, err)
	assert.Zero(t, stock, "调度失败不回滚已成立的抢购")
}

func TestClaimInventoryCorruptionHaltsOffering(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 2)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice", "bob")
	f.store.CorruptPool("off-1")

	_, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	require.ErrorIs(t, err, port.ErrInventoryCorrupted)
	assert.Equal(t, domain.OfferingStatusHalted, f.offerings.statusOf("off-1"))

	// 之后的一切抢购立即拒绝，不再触碰共享状态
	_, err = f.svc.Claim(ctx, claimReq("off-1", "bob"))
	assert.ErrorIs(t, err, ErrOfferingHalted)
}

func TestClaimRefusedWhenHaltPersistedByOtherInstance(t *testing.T) {
	ctx := context.Background()
	// 另一个实例已把活动标记为 halted，本实例没有进程内标记，
	// 只能靠 DB 状态收敛到同一判定
	offering := onSaleOffering("off-1", 2)
	offering.Status = domain.OfferingStatusHalted
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")

	_, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	assert.ErrorIs(t, err, ErrOfferingHalted)

	_, err = f.svc.Release(ctx, "off-1", "alice", "off-1#1")
	assert.ErrorIs(t, err, ErrOfferingHalted)

	// 库存未被触碰
	stock, err := f.store.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stock)
}

func TestReleaseAndClaimAgain(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 1)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")

	claimed, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	require.NoError(t, err)
	require.Equal(t, port.ClaimSuccess, claimed.Outcome)

	released, err := f.svc.Release(ctx, "off-1", "alice", claimed.ItemID)
	require.NoError(t, err)
	assert.Equal(t, port.ReleaseSuccess, released.Outcome)

	again, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimSuccess, again.Outcome)
	assert.Equal(t, claimed.ItemID, again.ItemID)
}

func TestReleaseWithoutClaim(t *testing.T) {
	offering := onSaleOffering("off-1", 1)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")

	released, err := f.svc.Release(context.Background(), "off-1", "alice", "off-1#1")
	require.NoError(t, err)
	assert.Equal(t, port.ReleaseNothingToRelease, released.Outcome)

	// 没有实际补偿就没有事件
	for _, e := range f.events.published() {
		assert.NotEqual(t, domain.SaleEventReleased, e.Kind)
	}
}

func TestRunDrawNoParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onSaleOffering("off-1", 3))

	result, err := f.svc.RunDraw(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, port.DrawNoParticipants, result.Outcome)

	// 未创建中签集合，任何人抢购都是 NOT_QUALIFIED
	claimResult, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, port.ClaimNotQualified, claimResult.Outcome)
}

func TestRunDrawOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onSaleOffering("off-1", 3))
	f.now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		_, err := f.svc.Register(ctx, "off-1", fmt.Sprintf("buyer-%d", i))
		require.NoError(t, err)
	}

	result, err := f.svc.RunDraw(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, port.DrawSelected, result.Outcome)
	// publish_count=3, multiplier=2 → 目标 6
	assert.Equal(t, 6, result.Selected)

	eligible, err := f.svc.EligibleCount(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 6, eligible)

	// 第二次开奖被拒绝，中签集合不变
	result, err = f.svc.RunDraw(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, port.DrawAlreadyDone, result.Outcome)
}

func TestScheduledDrawFires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onSaleOffering("off-1", 1))
	f.now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	_, err := f.svc.Register(ctx, "off-1", "alice")
	require.NoError(t, err)

	// 已过期的触发时间立即异步执行
	f.svc.ScheduleDraw("off-1", time.Now().Add(-time.Second))

	assert.Eventually(t, func() bool {
		n, err := f.svc.EligibleCount(ctx, "off-1")
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRestoreTimers(t *testing.T) {
	offering := onSaleOffering("off-1", 1)
	offering.DrawEndAt = time.Now().Add(time.Hour) // 尚未开奖
	drawn := onSaleOffering("off-2", 1)            // 默认 09:00，已过
	f := newFixture(t, offering, drawn)

	require.NoError(t, f.svc.RestoreTimers(context.Background()))
	assert.Equal(t, 1, f.timers.Pending(), "只有未开奖的活动重建触发器")
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 3)
	offering.Status = domain.OfferingStatusDraft
	f := newFixture(t, offering)
	f.items.items["off-1"] = []string{"off-1#1", "off-1#2", "off-1#3"}

	seeded, err := f.svc.Prepare(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 3, seeded)
	assert.Equal(t, domain.OfferingStatusOnSale, f.offerings.statusOf("off-1"))

	stock, err := f.store.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
}

func TestPrepareRefusesItemMismatch(t *testing.T) {
	offering := onSaleOffering("off-1", 3)
	f := newFixture(t, offering)
	f.items.items["off-1"] = []string{"off-1#1"} // 缺两条记录

	_, err := f.svc.Prepare(context.Background(), "off-1")
	assert.Error(t, err)

	stock, serr := f.store.Stock(context.Background(), "off-1")
	require.NoError(t, serr)
	assert.Zero(t, stock, "校验失败时不播种")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 1)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")
	f.svc.ScheduleDraw("off-1", time.Now().Add(time.Hour))

	require.NoError(t, f.svc.Cleanup(ctx, "off-1"))

	stock, err := f.store.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Zero(t, stock)
	assert.Zero(t, f.timers.Pending(), "清理撤销该活动的全部触发器")
	assert.Equal(t, domain.OfferingStatusFinished, f.offerings.statusOf("off-1"))
}

func TestProcessTimeoutCheckPaid(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 1)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")

	claimed, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	require.NoError(t, err)
	f.orders.paid[claimed.TradeID] = true

	require.NoError(t, f.svc.ProcessTimeoutCheck(ctx, &domain.TradeTimeoutCheckEvent{
		TradeID:    claimed.TradeID,
		OfferingID: "off-1",
		BuyerID:    "alice",
		ItemID:     claimed.ItemID,
	}))

	// 已支付的订单不补偿
	stock, err := f.store.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Zero(t, stock)
}

func TestProcessTimeoutCheckUnpaid(t *testing.T) {
	ctx := context.Background()
	offering := onSaleOffering("off-1", 1)
	f := newFixture(t, offering)
	f.seedSale(t, offering, "alice")

	claimed, err := f.svc.Claim(ctx, claimReq("off-1", "alice"))
	require.NoError(t, err)

	event := &domain.TradeTimeoutCheckEvent{
		TradeID:    claimed.TradeID,
		OfferingID: "off-1",
		BuyerID:    "alice",
		ItemID:     claimed.ItemID,
	}
	require.NoError(t, f.svc.ProcessTimeoutCheck(ctx, event))

	stock, err := f.store.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stock, "未支付的抢购被补偿回库存")

	// 重复投递无害
	require.NoError(t, f.svc.ProcessTimeoutCheck(ctx, event))
	stock, err = f.store.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}
