package presentation

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RaikyD/esim-fulfillment-service/internal/application"
	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
	"github.com/RaikyD/esim-fulfillment-service/internal/metrics"
	"github.com/RaikyD/esim-fulfillment-service/internal/presentation/helpers"
)

const (
	HeaderHmac = "X-Storefront-Hmac-Sha256"
	HeaderShop = "X-Storefront-Shop-Domain"

	maxWebhookBody = 1 << 20
)

type FulfillmentHandler struct {
	svc        *application.FulfillmentService
	hmacSecret string
}

func NewFulfillmentHandler(svc *application.FulfillmentService, hmacSecret string) *FulfillmentHandler {
	return &FulfillmentHandler{svc: svc, hmacSecret: hmacSecret}
}

func (h *FulfillmentHandler) Register(r chi.Router) {
	r.Post("/webhooks/orders-paid", h.OrderPaid)
	r.Get("/deliveries/{orderID}/{lineItemID}", h.GetDelivery)
}

// OrderPaid обрабатывает "order paid" от витрины.
// Единственные не-200 ответы — подпись и битое тело; всё остальное платформе
// не интересно: ответить нужно быстро, иначе она начнёт свой шторм ретраев.
// Корректность держат идемпотентность по (order, line item) и очередь.
func (h *FulfillmentHandler) OrderPaid(w http.ResponseWriter, r *http.Request) {
	// не LimitReader: тело сверх лимита — это ошибка, а не молчаливое
	// усечение байтов, по которым считается подпись
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	// подпись проверяем по сырым байтам — до любого парсинга
	sig := r.Header.Get(HeaderHmac)
	if sig == "" || !VerifyHMAC(h.hmacSecret, body, sig) {
		metrics.WebhookEvents.WithLabelValues("bad_signature").Inc()
		logger.Warn("webhook signature mismatch", "shop", r.Header.Get(HeaderShop))
		helpers.HttpError(w, http.StatusUnauthorized, "invalid hmac signature")
		return
	}

	var n domain.OrderPaidNotification
	if err := json.Unmarshal(body, &n); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if n.ID == 0 {
		helpers.HttpError(w, http.StatusBadRequest, "order id is required")
		return
	}

	shop := r.Header.Get(HeaderShop)
	if err := h.svc.IngestOrderPaid(r.Context(), shop, &n); err != nil {
		// внутренняя ошибка — только лог, платформе всё равно 200
		logger.Error("webhook processing failed", "order_id", n.ID, "err", err)
	}

	helpers.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *FulfillmentHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	lineItemID := strings.TrimSpace(chi.URLParam(r, "lineItemID"))
	if orderID == "" || lineItemID == "" {
		helpers.HttpError(w, http.StatusBadRequest, "orderID and lineItemID are required")
		return
	}

	d, err := h.svc.GetDelivery(r.Context(), orderID, lineItemID)
	if err != nil {
		helpers.HttpError(w, http.StatusInternalServerError, "failed to get delivery")
		return
	}
	if d == nil {
		helpers.HttpError(w, http.StatusNotFound, "delivery not found")
		return
	}
	// PayloadEncrypted наружу не отдаём (json:"-")
	helpers.WriteJSON(w, http.StatusOK, d)
}
