// cmd/push-gateway/main.go
package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/bootstrap"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/logger"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/mq"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/infrastructure/adapter"
)

const (
	serviceName = "push-gateway"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	nodeID   = serviceName + "-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
			return true
		},
	}
)

// Hub 按活动维度维护订阅者，并把发售事件广播给对应活动的所有连接。
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{} // key: offeringID
}

func newHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*Client]struct{})}
}

func (h *Hub) subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[c.offeringID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subscribers[c.offeringID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subscribers[c.offeringID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.subscribers, c.offeringID)
		}
	}
}

// broadcast 向订阅了该活动的全部连接投递事件。
// 发送缓冲已满的慢连接直接断开，避免拖垮广播循环。
func (h *Hub) broadcast(offeringID string, payload []byte) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.subscribers[offeringID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.unsubscribe(c)
	}
}

// Client 是一条 WebSocket 连接。
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	offeringID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unsubscribe(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// 客户端只发心跳，任何读错误都视为断开
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	offeringID := r.URL.Query().Get("offering_id")
	if offeringID == "" {
		http.Error(w, "offering_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), offeringID: offeringID}
	hub.subscribe(client)
	logger.Ctx(r.Context()).Info().Str("offering_id", offeringID).Str("node", nodeID).Msg("client subscribed")

	go client.writePump()
	go client.readPump()
}

// consumeEvents 消费发售事件流并广播。消息以活动 ID 为 key，
// 因此直接用 key 路由，无需反序列化载荷。
func consumeEvents(ctx context.Context, hub *Hub, reader *kafka.Reader) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read sale event, retrying")
			time.Sleep(1 * time.Second)
			continue
		}
		hub.broadcast(string(msg.Key), msg.Value)
	}
}

func main() {
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, cfg.App.LogLevel)
	ctx := context.Background()

	hub := newHub()

	// 每个网关节点使用独立消费组，事件以扇出方式到达所有节点
	reader := mq.NewKafkaReader(
		strings.Split(cfg.Infra.Kafka.Brokers, ","),
		adapter.SaleEventsTopic,
		serviceName+"-group-"+nodeID,
	)
	defer reader.Close()
	go consumeEvents(ctx, hub, reader)

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	logger.Ctx(ctx).Info().Str("node", nodeID).Msg("push gateway listening on :8088")
	if err := http.ListenAndServe(":8088", nil); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("listen and serve failed")
	}
}
