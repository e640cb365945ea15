package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/core/service"
	"github.com/ghshop/storefront/internal/port"
)

type HTTPHandler struct {
	orders   *service.OrderService
	invoices *service.InvoiceService
	payments *service.PaymentService
	logger   *zap.Logger
}

func NewHTTPHandler(
	orders *service.OrderService,
	invoices *service.InvoiceService,
	payments *service.PaymentService,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		orders:   orders,
		invoices: invoices,
		payments: payments,
		logger:   logger,
	}
}

// Register mounts the invoice and order routes on the router.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/orders", h.CreateOrder)
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Get("/count", h.CountInvoices)
			r.Post("/callback", h.AcceptPayment)
			r.Get("/{id}", h.GetInvoice)
			r.Patch("/{id}", h.UpdateInvoice)
			r.Post("/{id}/payment", h.MakePayment)
		})
	})
	r.Get("/health", h.HealthCheck)
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || len(req.Lines) == 0 {
		writeMessage(w, http.StatusBadRequest, "missing required fields")
		return
	}
	for _, l := range req.Lines {
		if l.ProductID == "" || l.ItemID == "" || l.Quantity <= 0 {
			writeMessage(w, http.StatusBadRequest, "missing required fields")
			return
		}
	}

	inv, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "success",
		"info":    invoiceDTO(inv),
	})
}

func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": invoiceDTO(inv)})
}

func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	f := invoiceFilterFromQuery(r)

	invoices, total, err := h.invoices.ListInvoices(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		dtos = append(dtos, invoiceDTO(&invoices[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"info": map[string]any{
			"invoices":      dtos,
			"totalInvoices": total,
		},
	})
}

func (h *HTTPHandler) CountInvoices(w http.ResponseWriter, r *http.Request) {
	count, err := h.invoices.CountInvoices(r.Context(), invoiceFilterFromQuery(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"info": map[string]any{"numberOfInvoices": count},
	})
}

type updateInvoiceRequest struct {
	Status    *domain.InvoiceStatus `json:"status"`
	Payment   *domain.PaymentMethod `json:"payment"`
	PaymentID *string               `json:"paymentID"`
}

func (h *HTTPHandler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req updateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Payment != nil && !req.Payment.Valid() {
		writeMessage(w, http.StatusBadRequest, "invalid payment method")
		return
	}

	inv, err := h.invoices.UpdateInvoice(r.Context(), chi.URLParam(r, "id"), service.UpdateRequest{
		Status:    req.Status,
		Payment:   req.Payment,
		PaymentID: req.PaymentID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": invoiceDTO(inv)})
}

func (h *HTTPHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	orderURL, err := h.payments.InitiatePayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "success",
		"info":    orderURL,
	})
}

type callbackRequest struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
}

// AcceptPayment handles the gateway callback. The gateway expects the
// structured return_code body on every outcome, so this route never answers
// with an HTTP error status.
func (h *HTTPHandler) AcceptPayment(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, domain.CallbackResult{
			ReturnCode: 0, ReturnMessage: "invalid callback body",
		})
		return
	}

	result := h.payments.HandleCallback(r.Context(), req.Data, req.Mac)
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvoiceNotFound):
		writeMessage(w, http.StatusNotFound, "invoice not found")
	case errors.Is(err, domain.ErrItemNotFound):
		writeMessage(w, http.StatusBadRequest, "product item not found")
	case errors.Is(err, domain.ErrInsufficientQuantity):
		writeMessage(w, http.StatusBadRequest, "product in order does not have enough quantity")
	case errors.Is(err, domain.ErrUserNotFound):
		writeMessage(w, http.StatusBadRequest, "user not found")
	case errors.Is(err, service.ErrEmptyOrder):
		writeMessage(w, http.StatusBadRequest, "order has no lines")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeMessage(w, http.StatusBadRequest, "invalid status transition")
	case errors.Is(err, domain.ErrGatewayCall):
		writeMessage(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func invoiceFilterFromQuery(r *http.Request) port.InvoiceFilter {
	q := r.URL.Query()
	f := port.InvoiceFilter{
		Status:    domain.InvoiceStatus(q.Get("status")),
		UserID:    q.Get("userID"),
		UserName:  q.Get("searching"),
		InvoiceID: q.Get("invoiceID"),
	}
	if d, err := time.Parse("2006-01-02", q.Get("date")); err == nil {
		f.CreatedOn = &d
	}
	if page, err := strconv.Atoi(q.Get("currentPage")); err == nil && page > 0 {
		f.Page = page
	}
	return f
}

type invoiceResponse struct {
	InvoiceID     string                `json:"invoiceID"`
	Status        domain.InvoiceStatus  `json:"status"`
	Payment       domain.PaymentMethod  `json:"payment"`
	PaymentID     string                `json:"paymentID,omitempty"`
	UserID        string                `json:"userID"`
	UserName      string                `json:"userName"`
	Email         string                `json:"email"`
	PhoneNumber   string                `json:"phoneNumber"`
	Province      string                `json:"province"`
	District      string                `json:"district"`
	Ward          string                `json:"ward"`
	DetailAddress string                `json:"detailAddress"`
	Note          string                `json:"note,omitempty"`
	ShippingFee   int64                 `json:"shippingFee"`
	CreatedAt     time.Time             `json:"createdAt"`
	DoneAt        *time.Time            `json:"doneAt,omitempty"`
	Lines         []invoiceLineResponse `json:"invoiceProducts"`
}

type invoiceLineResponse struct {
	ProductID    string  `json:"productID"`
	ItemID       string  `json:"itemID"`
	ProductName  string  `json:"productName"`
	ProductCode  string  `json:"productCode"`
	Color        string  `json:"color"`
	Storage      string  `json:"storage"`
	CategoryName string  `json:"categoryName"`
	ProviderName string  `json:"providerName"`
	Thumbnail    string  `json:"thump"`
	Quantity     int     `json:"quantity"`
	Price        int64   `json:"price"`
	Discount     float64 `json:"discount"`
}

func invoiceDTO(inv *domain.Invoice) invoiceResponse {
	lines := make([]invoiceLineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, invoiceLineResponse{
			ProductID:    l.ProductID,
			ItemID:       l.ItemID,
			ProductName:  l.ProductName,
			ProductCode:  l.ProductCode,
			Color:        l.Color,
			Storage:      l.Storage,
			CategoryName: l.CategoryName,
			ProviderName: l.ProviderName,
			Thumbnail:    l.Thumbnail,
			Quantity:     l.Quantity,
			Price:        l.Price,
			Discount:     l.Discount,
		})
	}
	return invoiceResponse{
		InvoiceID:     inv.InvoiceID,
		Status:        inv.Status,
		Payment:       inv.Payment,
		PaymentID:     inv.PaymentID,
		UserID:        inv.UserID,
		UserName:      inv.UserName,
		Email:         inv.Email,
		PhoneNumber:   inv.PhoneNumber,
		Province:      inv.Province,
		District:      inv.District,
		Ward:          inv.Ward,
		DetailAddress: inv.DetailAddress,
		Note:          inv.Note,
		ShippingFee:   inv.ShippingFee,
		CreatedAt:     inv.CreatedAt,
		DoneAt:        inv.DoneAt,
		Lines:         lines,
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
