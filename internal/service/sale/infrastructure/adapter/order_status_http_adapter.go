package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/httpclient"
)

// OrderStatusHTTPAdapter 实现了 port.OrderStatusChecker 接口。
// 订单服务是外部协作方，这里只查询一次支付状态。
type OrderStatusHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewOrderStatusHTTPAdapter(client *httpclient.Client, baseURL string) *OrderStatusHTTPAdapter {
	return &OrderStatusHTTPAdapter{client: client, baseURL: baseURL}
}

func (a *OrderStatusHTTPAdapter) Paid(ctx context.Context, tradeID string) (bool, error) {
	reqURL := fmt.Sprintf("%s/internal/trades/%s/status", a.baseURL, url.PathEscape(tradeID))
	body, err := a.client.GetJSON(ctx, reqURL)
	if err != nil {
		return false, fmt.Errorf("failed to query order status for trade %s: %w", tradeID, err)
	}

	var resp struct {
		Paid bool `json:"paid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("unexpected order status payload: %w", err)
	}
	return resp.Paid, nil
}
