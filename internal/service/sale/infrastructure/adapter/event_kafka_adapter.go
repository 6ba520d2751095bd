package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/mq"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
)

// SaleEventsTopic 发售动态事件流，推送网关消费后广播给前端。
const SaleEventsTopic = "sale-events-topic"

// SaleEventKafkaAdapter 实现了 port.SaleEventProducer 接口。
type SaleEventKafkaAdapter struct {
	writer *kafka.Writer
}

func NewSaleEventKafkaAdapter(brokers []string) *SaleEventKafkaAdapter {
	return &SaleEventKafkaAdapter{writer: mq.NewKafkaWriter(brokers, SaleEventsTopic)}
}

// Publish 投递一条发售事件。以活动 ID 为 key，同一活动的事件保序。
func (a *SaleEventKafkaAdapter) Publish(ctx context.Context, event *domain.SaleEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.OfferingID), eventBytes)
}

// Close 关闭底层的Kafka writer。
func (a *SaleEventKafkaAdapter) Close() error {
	return a.writer.Close()
}
