// cmd/sale-service/main.go
package main

import (
	"context"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/bootstrap"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/httpclient"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/mq"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/redis"
	chainapp "github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/application"
	chaininfra "github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/infrastructure"
	chainiface "github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/interfaces"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/application"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/infrastructure"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/infrastructure/adapter"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/interfaces"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/timer"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/zookeeper"
)

const (
	serviceName          = "sale-service"
	timeoutConsumerGroup = "sale-timeout-consumer-group"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.GetCurrentConfig()
	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")
	tracer := otel.Tracer(serviceName)

	// 1. 基础设施客户端
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}

	db, err := infrastructure.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to initialize mysql: %v", err)
	}

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
	if err != nil {
		log.Fatalf("failed to connect zookeeper: %v", err)
	}

	httpClient := httpclient.NewClient(tracer)

	// 2. 出站适配器
	admission, err := adapter.NewAdmissionRedisAdapter(redisClient)
	if err != nil {
		log.Fatalf("failed to load admission scripts: %v", err)
	}
	lottery, err := adapter.NewLotteryRedisAdapter(redisClient)
	if err != nil {
		log.Fatalf("failed to load lottery scripts: %v", err)
	}
	qualifier, err := adapter.NewCELQualifier()
	if err != nil {
		log.Fatalf("failed to build CEL environment: %v", err)
	}
	scheduler := adapter.NewSchedulerKafkaAdapter(brokers, time.Duration(cfg.App.PaymentGraceSeconds)*time.Second)
	events := adapter.NewSaleEventKafkaAdapter(brokers)
	orders := adapter.NewOrderStatusHTTPAdapter(httpClient, cfg.Infra.Order.BaseURL)

	timers := timer.NewScheduler()

	// 3. 应用服务
	saleService := application.NewSaleApplicationService(application.Deps{
		Offerings:       infrastructure.NewGormOfferingRepository(db),
		Items:           infrastructure.NewGormItemRepository(db),
		Admission:       admission,
		Lottery:         lottery,
		Scheduler:       scheduler,
		Events:          events,
		Orders:          orders,
		Qualifier:       qualifier,
		Locker:          zookeeper.NewLocker(zkConn),
		Timers:          timers,
		Tracer:          tracer,
		LuckyMultiplier: cfg.App.LuckyMultiplier,
	})

	// 4. 链上操作追踪器
	opRepo := chaininfra.NewGormOperationRepository(db)
	tracker := chainapp.NewTracker(
		opRepo,
		chaininfra.NewChainHTTPAdapter(httpClient, cfg.Infra.Chain.BaseURL),
		chaininfra.NewGormResultApplier(db),
		chainapp.DefaultRetryPolicy(),
		tracer,
	)

	// 5. 支付超时检查消费者
	timeoutReader := mq.NewKafkaReader(brokers, adapter.TimeoutTopic, timeoutConsumerGroup)
	timeoutConsumer := interfaces.NewTimeoutConsumerAdapter(timeoutReader, saleService)

	// 6. 进程重启后的恢复：重新派生开奖定时器，接管未完成的链上操作
	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	g, gctx := errgroup.WithContext(recoverCtx)
	g.Go(func() error { return saleService.RestoreTimers(gctx) })
	g.Go(func() error { return tracker.Recover(gctx) })
	if err := g.Wait(); err != nil {
		log.Fatalf("failed to recover state on startup: %v", err)
	}
	recoverCancel()

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	if err := timeoutConsumer.Start(consumerCtx); err != nil {
		log.Fatalf("failed to start timeout consumer: %v", err)
	}

	saleHandler := interfaces.NewSaleHandler(saleService)
	chainHandler := chainiface.NewChainHandler(tracker, opRepo)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			saleHandler.RegisterRoutes(appCtx.Mux)
			chainHandler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			consumerCancel()
			timeoutConsumer.Stop(ctx)
			tracker.Close()
			timers.Close()
			_ = scheduler.Close()
			_ = events.Close()
			_ = redisClient.Close()
			zkConn.Close()
		},
	})
}
