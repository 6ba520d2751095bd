package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/application"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/chain/domain"
)

const serviceName = "sale-service"

// ChainHandler 暴露链上操作的提交与查询接口。
// 提交后立即返回 operation_id，结果由 tracker 异步轮询落库。
type ChainHandler struct {
	tracker *application.Tracker
	repo    domain.OperationRepository
}

func NewChainHandler(tracker *application.Tracker, repo domain.OperationRepository) *ChainHandler {
	return &ChainHandler{tracker: tracker, repo: repo}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ChainHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chain/submit", h.submitHandler)
	mux.HandleFunc("/chain/operation", h.operationHandler)
}

func (h *ChainHandler) submitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.ChainSubmit")
	defer span.End()

	kind := domain.Kind(r.URL.Query().Get("kind"))
	offeringID := r.URL.Query().Get("offering_id")
	itemID := r.URL.Query().Get("item_id")
	switch kind {
	case domain.KindCreateClass, domain.KindProvisionItems:
		if offeringID == "" {
			http.Error(w, "offering_id is required", http.StatusBadRequest)
			return
		}
	case domain.KindBindItem:
		if offeringID == "" || itemID == "" {
			http.Error(w, "offering_id and item_id are required", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}

	op, err := h.tracker.Submit(ctx, kind, offeringID, itemID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation_id": op.ID,
		"state":        string(op.State),
	})
}

func (h *ChainHandler) operationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.ChainOperation")
	defer span.End()

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	op, err := h.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOperationNotFound) {
			http.Error(w, "operation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operation_id": op.ID,
		"kind":         string(op.Kind),
		"state":        string(op.State),
		"attempts":     op.Attempts,
		"result":       op.Result,
		"error":        op.Error,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
