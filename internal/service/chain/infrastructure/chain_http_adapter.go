package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/httpclient"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain/port"
)

// ChainHTTPAdapter 是 port.Client 的 HTTP 实现，对接链网关。
// 链网关以 operation_id 去重，同一令牌重复提交只生效一次。
type ChainHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewChainHTTPAdapter(client *httpclient.Client, baseURL string) *ChainHTTPAdapter {
	return &ChainHTTPAdapter{client: client, baseURL: baseURL}
}

type submitRequest struct {
	OperationID string `json:"operation_id"`
	Kind        string `json:"kind"`
	OfferingID  string `json:"offering_id"`
	ItemID      string `json:"item_id,omitempty"`
}

func (a *ChainHTTPAdapter) Submit(ctx context.Context, op *domain.Operation) error {
	body, err := json.Marshal(submitRequest{
		OperationID: op.ID,
		Kind:        string(op.Kind),
		OfferingID:  op.OfferingID,
		ItemID:      op.ItemID,
	})
	if err != nil {
		return err
	}
	if _, err := a.client.PostJSON(ctx, a.baseURL+"/v1/operations", body); err != nil {
		return fmt.Errorf("failed to submit chain operation %s: %w", op.ID, err)
	}
	return nil
}

type queryResponse struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result,omitempty"`
	ErrCode string          `json:"err_code,omitempty"`
}

func (a *ChainHTTPAdapter) Query(ctx context.Context, operationID string) (*port.QueryResult, error) {
	reqURL := fmt.Sprintf("%s/v1/operations/%s", a.baseURL, url.PathEscape(operationID))
	body, err := a.client.GetJSON(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain operation %s: %w", operationID, err)
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unexpected chain status payload: %w", err)
	}

	switch resp.Status {
	case "pending":
		return &port.QueryResult{Status: port.StatusPending}, nil
	case "confirmed":
		return &port.QueryResult{Status: port.StatusConfirmed, Payload: string(resp.Result)}, nil
	case "failed":
		return &port.QueryResult{Status: port.StatusFailed, ErrCode: resp.ErrCode}, nil
	default:
		return nil, fmt.Errorf("unknown chain operation status: %q", resp.Status)
	}
}
