package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/application"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

const serviceName = "sale-service"

// SaleHandler 封装了发售核心的 HTTP 处理器。
// 通用的路由/鉴权/参数校验由网关层负责，这里只暴露核心操作。
type SaleHandler struct {
	service *application.SaleApplicationService
}

// NewSaleHandler 创建一个新的 HTTP 处理器实例
func NewSaleHandler(service *application.SaleApplicationService) *SaleHandler {
	return &SaleHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SaleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/register", h.registerHandler)
	mux.HandleFunc("/draw_count", h.drawCountHandler)
	mux.HandleFunc("/eligible_count", h.eligibleCountHandler)
	mux.HandleFunc("/claim", h.claimHandler)
	mux.HandleFunc("/release", h.releaseHandler)
	mux.HandleFunc("/prepare", h.prepareHandler)
	mux.HandleFunc("/cleanup", h.cleanupHandler)
}

func (h *SaleHandler) registerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Register")
	defer span.End()

	offeringID := r.URL.Query().Get("offering_id")
	candidateID := r.URL.Query().Get("candidate_id")
	if offeringID == "" || candidateID == "" {
		http.Error(w, "offering_id and candidate_id are required", http.StatusBadRequest)
		return
	}

	added, err := h.service.Register(ctx, offeringID, candidateID)
	if err != nil {
		if errors.Is(err, application.ErrDrawClosed) {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"code": "DRAW_CLOSED"})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"newly_added": added})
}

func (h *SaleHandler) drawCountHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	offeringID := r.URL.Query().Get("offering_id")
	count, err := h.service.DrawCount(ctx, offeringID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (h *SaleHandler) eligibleCountHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	offeringID := r.URL.Query().Get("offering_id")
	count, err := h.service.EligibleCount(ctx, offeringID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (h *SaleHandler) claimHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Claim")
	defer span.End()

	q := r.URL.Query()
	offeringID := q.Get("offering_id")
	buyerID := q.Get("buyer_id")
	if offeringID == "" || buyerID == "" {
		http.Error(w, "offering_id and buyer_id are required", http.StatusBadRequest)
		return
	}
	level, _ := strconv.Atoi(q.Get("buyer_level"))

	result, err := h.service.Claim(ctx, &application.ClaimRequest{
		OfferingID: offeringID,
		BuyerID:    buyerID,
		Buyer: port.BuyerFact{
			ID:       buyerID,
			Verified: q.Get("buyer_verified") == "true",
			Level:    level,
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome != port.ClaimSuccess {
		// 业务拒绝统一 403，具体原因看 code 字段
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]interface{}{
		"code":     result.Outcome.String(),
		"item_id":  result.ItemID,
		"trade_id": result.TradeID,
	})
}

func (h *SaleHandler) releaseHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Release")
	defer span.End()

	q := r.URL.Query()
	offeringID := q.Get("offering_id")
	buyerID := q.Get("buyer_id")
	itemID := q.Get("item_id")
	if offeringID == "" || buyerID == "" || itemID == "" {
		http.Error(w, "offering_id, buyer_id and item_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Release(ctx, offeringID, buyerID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": result.Outcome.String()})
}

func (h *SaleHandler) prepareHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	offeringID := r.URL.Query().Get("offering_id")
	seeded, err := h.service.Prepare(ctx, offeringID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seeded": seeded})
}

func (h *SaleHandler) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	offeringID := r.URL.Query().Get("offering_id")
	if err := h.service.Cleanup(ctx, offeringID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SaleHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOfferingNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, application.ErrOfferingHalted):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		// 基础设施故障：快速失败，重试策略属于调用方
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func extract(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
