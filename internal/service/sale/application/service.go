package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/logger"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/metrics"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/timer"
)

var (
	// ErrDrawClosed 抽签登记已截止。
	ErrDrawClosed = errors.New("draw registration closed")
	// ErrOfferingHalted 活动因不变式被破坏而停止受理。
	ErrOfferingHalted = errors.New("offering halted, admission suspended")
)

// Deps 列出应用服务的全部出站依赖，统一在组装根注入。
type Deps struct {
	Offerings domain.OfferingRepository
	Items     domain.ItemRepository
	Admission port.AdmissionService
	Lottery   port.LotteryService
	Scheduler port.DelayScheduler
	Events    port.SaleEventProducer
	Orders    port.OrderStatusChecker
	Qualifier port.Qualifier
	Locker    port.DrawLocker
	Timers    *timer.Scheduler
	Tracer    trace.Tracer
	// LuckyMultiplier 中签集合相对发行量的倍数，<=0 时取默认值 2
	LuckyMultiplier float64
	// Now 可注入的时钟，nil 时使用 time.Now
	Now func() time.Time
}

// SaleApplicationService 编排发售核心的全部用例：
// 抽签登记、开奖、抢购准入、支付超时补偿、键空间清理。
type SaleApplicationService struct {
	deps Deps
	now  func() time.Time

	haltedMu sync.RWMutex
	halted   map[string]struct{}
}

func NewSaleApplicationService(deps Deps) *SaleApplicationService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &SaleApplicationService{
		deps:   deps,
		now:    now,
		halted: make(map[string]struct{}),
	}
}

// Register 在抽签截止前把候选人加入抽签池，返回是否为新增成员。
// 重复登记是无害的幂等操作。截止后返回 ErrDrawClosed。
func (s *SaleApplicationService) Register(ctx context.Context, offeringID, candidateID string) (bool, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.Register")
	defer span.End()
	span.SetAttributes(
		attribute.String("offering.id", offeringID),
		attribute.String("candidate.id", candidateID),
	)

	offering, err := s.deps.Offerings.FindByID(ctx, offeringID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if offering.DrawClosed(s.now()) {
		span.AddEvent("Registration refused: draw closed")
		return false, ErrDrawClosed
	}

	added, err := s.deps.Lottery.Register(ctx, offeringID, candidateID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if added {
		metrics.RegistrationsTotal.Inc()
	}
	return added, nil
}

// DrawCount 返回当前抽签池大小。
func (s *SaleApplicationService) DrawCount(ctx context.Context, offeringID string) (int, error) {
	return s.deps.Lottery.DrawCount(ctx, offeringID)
}

// EligibleCount 返回中签集合大小。
func (s *SaleApplicationService) EligibleCount(ctx context.Context, offeringID string) (int, error) {
	return s.deps.Lottery.EligibleCount(ctx, offeringID)
}

// Claim 处理一次抢购。
//
// 开售时间校验在原子步骤之外完成：未开售的请求不触碰共享状态。
// 之后资格规则（若有）评估，再进入 Redis 脚本的原子准入。
// 业务拒绝以 ClaimResult 返回，error 只表示基础设施故障。
func (s *SaleApplicationService) Claim(ctx context.Context, req *ClaimRequest) (*ClaimResult, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.Claim")
	defer span.End()
	span.SetAttributes(
		attribute.String("offering.id", req.OfferingID),
		attribute.String("buyer.id", req.BuyerID),
	)

	offering, err := s.findAdmissible(ctx, req.OfferingID)
	if err != nil {
		if errors.Is(err, ErrOfferingHalted) {
			span.SetStatus(codes.Error, ErrOfferingHalted.Error())
		} else {
			span.RecordError(err)
		}
		return nil, err
	}

	if !offering.SaleOpen(s.now()) {
		span.AddEvent("Claim refused: sale not yet open")
		metrics.ClaimsTotal.WithLabelValues(port.ClaimNotYetOpen.String()).Inc()
		return &ClaimResult{Outcome: port.ClaimNotYetOpen}, nil
	}

	// 活动配置了资格规则时先过规则，不合格的请求同样不触碰共享状态
	qualified, err := s.deps.Qualifier.Evaluate(ctx, offering.QualificationRule, req.Buyer)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !qualified {
		metrics.ClaimsTotal.WithLabelValues(port.ClaimNotQualified.String()).Inc()
		return &ClaimResult{Outcome: port.ClaimNotQualified}, nil
	}

	outcome, itemID, err := s.deps.Admission.Claim(ctx, req.OfferingID, req.BuyerID, offering.Limit())
	if err != nil {
		if errors.Is(err, port.ErrInventoryCorrupted) {
			// 致命：物品池与库存失去同步。停止该活动的一切受理。
			s.haltOffering(ctx, req.OfferingID)
			span.SetStatus(codes.Error, "inventory corrupted, offering halted")
		}
		span.RecordError(err)
		return nil, err
	}

	metrics.ClaimsTotal.WithLabelValues(outcome.String()).Inc()
	if outcome != port.ClaimSuccess {
		span.AddEvent("Claim rejected", trace.WithAttributes(attribute.String("outcome", outcome.String())))
		return &ClaimResult{Outcome: outcome}, nil
	}

	tradeID := uuid.New().String()
	span.SetAttributes(
		attribute.String("item.id", itemID),
		attribute.String("trade.id", tradeID),
	)

	// 调度支付超时检查。调度失败不回滚抢购：抢购已经成立，
	// 超时补偿可以由清扫任务兜底，这里只记录错误。
	if err := s.deps.Scheduler.SchedulePaymentTimeout(ctx, &domain.TradeTimeoutCheckEvent{
		TradeID:    tradeID,
		OfferingID: req.OfferingID,
		BuyerID:    req.BuyerID,
		ItemID:     itemID,
		ClaimedAt:  s.now(),
	}); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("trade_id", tradeID).Msg("failed to schedule payment timeout")
	}

	s.publishEvent(ctx, domain.SaleEventClaimed, req.OfferingID, req.BuyerID)

	return &ClaimResult{Outcome: port.ClaimSuccess, ItemID: itemID, TradeID: tradeID}, nil
}

// Release 执行一次补偿：恢复库存、回退买家计数、归还藏品。
func (s *SaleApplicationService) Release(ctx context.Context, offeringID, buyerID, itemID string) (*ReleaseResult, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.Release")
	defer span.End()
	span.SetAttributes(
		attribute.String("offering.id", offeringID),
		attribute.String("buyer.id", buyerID),
		attribute.String("item.id", itemID),
	)

	if _, err := s.findAdmissible(ctx, offeringID); err != nil {
		if errors.Is(err, ErrOfferingHalted) {
			span.SetStatus(codes.Error, ErrOfferingHalted.Error())
		} else {
			span.RecordError(err)
		}
		return nil, err
	}

	outcome, err := s.deps.Admission.Release(ctx, offeringID, buyerID, itemID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.ReleasesTotal.WithLabelValues(outcome.String()).Inc()

	if outcome == port.ReleaseSuccess {
		s.publishEvent(ctx, domain.SaleEventReleased, offeringID, buyerID)
	}
	return &ReleaseResult{Outcome: outcome}, nil
}

// RunDraw 执行开奖。开奖动作全局只能生效一次：
// 先抢占 ZooKeeper 锁，再执行存储层的原子抽样脚本。
// 脚本自身对"中签集合已存在"的拒绝是第二道防线。
func (s *SaleApplicationService) RunDraw(ctx context.Context, offeringID string) (*DrawResult, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.RunDraw")
	defer span.End()
	span.SetAttributes(attribute.String("offering.id", offeringID))

	offering, err := s.deps.Offerings.FindByID(ctx, offeringID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	target := offering.LuckyTarget(s.deps.LuckyMultiplier)
	span.SetAttributes(attribute.Int("draw.target", target))

	var (
		outcome  port.DrawOutcome
		selected int
	)
	err = s.deps.Locker.WithLock(offeringID, func() error {
		var inner error
		outcome, selected, inner = s.deps.Lottery.Select(ctx, offeringID, target)
		return inner
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.DrawsTotal.WithLabelValues(outcome.String()).Inc()
	switch outcome {
	case port.DrawSelected:
		logger.Ctx(ctx).Info().
			Str("offering_id", offeringID).
			Int("selected", selected).
			Msg("draw completed")
		s.publishEvent(ctx, domain.SaleEventDrawDone, offeringID, "")
	case port.DrawNoParticipants:
		// 无人登记是正常业务结局，不创建中签集合
		logger.Ctx(ctx).Info().Str("offering_id", offeringID).Msg("draw ended with no participants")
	case port.DrawAlreadyDone:
		logger.Ctx(ctx).Warn().Str("offering_id", offeringID).Msg("draw already done, selection refused")
	}

	return &DrawResult{Outcome: outcome, Selected: selected}, nil
}

// ScheduleDraw 安排 offeringID 在 at 时刻开奖。
func (s *SaleApplicationService) ScheduleDraw(offeringID string, at time.Time) {
	s.deps.Timers.Schedule(offeringID, timer.KindDraw, at, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.RunDraw(ctx, offeringID); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("offering_id", offeringID).Msg("scheduled draw failed")
		}
	})
}

// RestoreTimers 在进程启动时根据活动时间戳重建开奖触发器。
// 定时器不做跨重启持久化，数据库里的时间戳才是事实来源。
func (s *SaleApplicationService) RestoreTimers(ctx context.Context) error {
	offerings, err := s.deps.Offerings.ListUndrawn(ctx, s.now())
	if err != nil {
		return err
	}
	for _, o := range offerings {
		s.ScheduleDraw(o.ID, o.DrawEndAt)
	}
	logger.Ctx(ctx).Info().Int("count", len(offerings)).Msg("draw timers restored from offering timestamps")
	return nil
}

// Prepare 在开售前初始化库存与物品池：
// 物品池恰好以 publish_count 件藏品播种，库存计数与之同步。
func (s *SaleApplicationService) Prepare(ctx context.Context, offeringID string) (int, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.Prepare")
	defer span.End()
	span.SetAttributes(attribute.String("offering.id", offeringID))

	offering, err := s.deps.Offerings.FindByID(ctx, offeringID)
	if err != nil {
		return 0, err
	}
	itemIDs, err := s.deps.Items.ListIDsByOffering(ctx, offeringID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(itemIDs) != offering.PublishCount {
		err := errors.New("item records disagree with publish count, refusing to seed pool")
		span.RecordError(err)
		return 0, err
	}
	if err := s.deps.Admission.Prepare(ctx, offeringID, itemIDs); err != nil {
		span.RecordError(err)
		return 0, err
	}
	if err := s.deps.Offerings.UpdateStatus(ctx, offeringID, domain.OfferingStatusOnSale); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(itemIDs), nil
}

// Cleanup 清理一个已结束或已取消的活动：
// 一次性删除五个命名空间键，并撤销该活动的全部待触发定时器。
func (s *SaleApplicationService) Cleanup(ctx context.Context, offeringID string) error {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.Cleanup")
	defer span.End()
	span.SetAttributes(attribute.String("offering.id", offeringID))

	if err := s.deps.Admission.Cleanup(ctx, offeringID); err != nil {
		span.RecordError(err)
		return err
	}
	s.deps.Timers.CancelAll(offeringID)
	return s.deps.Offerings.UpdateStatus(ctx, offeringID, domain.OfferingStatusFinished)
}

// ProcessTimeoutCheck 处理到期的支付超时检查任务。
// 订单已支付则什么都不做；未支付则执行补偿。
// 补偿自身幂等（买家计数为 0 时拒绝），重复投递无害。
func (s *SaleApplicationService) ProcessTimeoutCheck(ctx context.Context, event *domain.TradeTimeoutCheckEvent) error {
	ctx, span := s.deps.Tracer.Start(ctx, "sale.ProcessTimeoutCheck")
	defer span.End()
	span.SetAttributes(attribute.String("trade.id", event.TradeID))

	paid, err := s.deps.Orders.Paid(ctx, event.TradeID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if paid {
		span.AddEvent("Trade already paid, no compensation needed")
		return nil
	}

	result, err := s.Release(ctx, event.OfferingID, event.BuyerID, event.ItemID)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Str("trade_id", event.TradeID).
		Str("outcome", result.Outcome.String()).
		Msg("payment timeout processed")
	return nil
}

func (s *SaleApplicationService) publishEvent(ctx context.Context, kind domain.SaleEventKind, offeringID, buyerID string) {
	stock, err := s.deps.Admission.Stock(ctx, offeringID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to read stock for sale event")
	}
	if err := s.deps.Events.Publish(ctx, &domain.SaleEvent{
		Kind:       kind,
		OfferingID: offeringID,
		BuyerID:    buyerID,
		Stock:      stock,
		OccurredAt: s.now(),
	}); err != nil {
		// 事件流只服务于前端展示，投递失败不影响准入正确性
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to publish sale event")
	}
}

// findAdmissible 加载活动并拒绝已停止受理的活动。
// 停止判定同时看进程内标记和 DB 状态：本实例检测到破坏会先写标记，
// 其他实例（或重启后的本实例）靠 DB 里的 halted 状态收敛到同一判定。
func (s *SaleApplicationService) findAdmissible(ctx context.Context, offeringID string) (*domain.Offering, error) {
	if s.isHalted(offeringID) {
		return nil, ErrOfferingHalted
	}
	offering, err := s.deps.Offerings.FindByID(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	if offering.Status == domain.OfferingStatusHalted {
		s.markHalted(offeringID)
		return nil, ErrOfferingHalted
	}
	return offering, nil
}

func (s *SaleApplicationService) isHalted(offeringID string) bool {
	s.haltedMu.RLock()
	defer s.haltedMu.RUnlock()
	_, ok := s.halted[offeringID]
	return ok
}

func (s *SaleApplicationService) markHalted(offeringID string) {
	s.haltedMu.Lock()
	s.halted[offeringID] = struct{}{}
	s.haltedMu.Unlock()
}

func (s *SaleApplicationService) haltOffering(ctx context.Context, offeringID string) {
	s.markHalted(offeringID)

	s.deps.Timers.CancelAll(offeringID)
	if err := s.deps.Offerings.UpdateStatus(ctx, offeringID, domain.OfferingStatusHalted); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("offering_id", offeringID).Msg("failed to persist halted status")
	}
	logger.Ctx(ctx).Error().Str("offering_id", offeringID).Msg("offering halted: inventory invariant violated")
}
