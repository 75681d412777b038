package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"consultaplaca/internal/model"
	"consultaplaca/internal/provider"
	"consultaplaca/internal/repository"
	"consultaplaca/internal/service"
)

type Handler struct {
	accounts   service.AccountService
	charger    service.ChargeService
	billing    service.BillingService
	reconciler service.NotificationService
	bus        service.MessageBus // nil when NATS is not configured
	validate   *validator.Validate
}

func NewHandler(accounts service.AccountService, charger service.ChargeService, billing service.BillingService, reconciler service.NotificationService, bus service.MessageBus) *Handler {
	return &Handler{
		accounts:   accounts,
		charger:    charger,
		billing:    billing,
		reconciler: reconciler,
		bus:        bus,
		validate:   validator.New(),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /register", h.RegisterAccount)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /api/placafipe/{placa}", h.FreeLookup)
	mux.HandleFunc("GET /api/placafipe/{placa}/completa", h.PaidLookup)
	mux.HandleFunc("POST /api/checkout", h.CreateCheckout)
	mux.HandleFunc("POST /api/payments/notifications", h.PaymentNotification)
	mux.HandleFunc("GET /api/balance", h.Balance)
	mux.HandleFunc("GET /api/history", h.History)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	acc, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, acc)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	acc, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, acc)
}

func (h *Handler) FreeLookup(w http.ResponseWriter, r *http.Request) {
	placa := r.PathValue("placa")
	if placa == "" {
		h.respondError(w, http.StatusBadRequest, "missing_plate")
		return
	}

	// Auth is optional here: a known account gets a history row, anonymous
	// callers just get the result.
	var accountID int64
	if acc, err := h.authenticate(r); err == nil && acc != nil {
		accountID = acc.ID
	}

	outcome, err := h.charger.Charge(r.Context(), accountID, placa, model.TierFree)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, outcome)
}

func (h *Handler) PaidLookup(w http.ResponseWriter, r *http.Request) {
	placa := r.PathValue("placa")
	if placa == "" {
		h.respondError(w, http.StatusBadRequest, "missing_plate")
		return
	}

	acc, err := h.authenticate(r)
	if err != nil || acc == nil {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	outcome, err := h.charger.Charge(r.Context(), acc.ID, placa, model.TierFull)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, outcome)
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	acc, err := h.authenticate(r)
	if err != nil || acc == nil {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	checkout, err := h.billing.CreateCheckout(r.Context(), acc.ID, req.Amount)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, checkout)
}

// PaymentNotification always acknowledges with 200: the provider retries
// non-2xx deliveries indefinitely, and duplicates, malformed bodies and
// internal failures are all handled (or retried) downstream. With NATS
// configured the raw notification goes to the queue group; otherwise it is
// reconciled inline.
func (h *Handler) PaymentNotification(w http.ResponseWriter, r *http.Request) {
	var n model.PaymentNotification
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err == nil && len(body) > 0 {
		// Malformed JSON is acknowledged as a no-op, not an error.
		_ = json.Unmarshal(body, &n)
	}

	// The provider also delivers references as query parameters.
	q := r.URL.Query()
	if n.Topic == "" {
		n.Topic = q.Get("topic")
	}
	if n.Topic == "" && n.Type == "" {
		n.Type = q.Get("type")
	}
	if n.ID == "" {
		n.ID = q.Get("id")
	}
	if n.Data.ID == "" {
		n.Data.ID = q.Get("data.id")
	}

	if h.bus != nil {
		data, _ := json.Marshal(n)
		if perr := h.bus.Publish(service.NotificationsSubject, data); perr != nil {
			slog.Error("failed to queue payment notification, reconciling inline", "error", perr)
		} else {
			h.respondJSON(w, http.StatusOK, map[string]string{"status": "queued"})
			return
		}
	}

	if err := h.reconciler.HandleNotification(r.Context(), n); err != nil {
		// Still acknowledged: the provider's redelivery is the retry path.
		slog.Error("payment notification reconciliation failed",
			"topic", n.Topic, "type", n.Type, "id", n.ID, "error", err)
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	acc, err := h.authenticate(r)
	if err != nil || acc == nil {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balance, err := h.billing.Balance(r.Context(), acc.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	acc, err := h.authenticate(r)
	if err != nil || acc == nil {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	entries, err := h.billing.History(r.Context(), acc.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// authenticate resolves the bearer token to an account. Returns (nil, nil)
// when no token is present.
func (h *Handler) authenticate(r *http.Request) (*model.Account, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, nil
	}
	acc, err := h.accounts.ByToken(r.Context(), strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var rejected *provider.RejectedError
	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		h.respondError(w, http.StatusPaymentRequired, "insufficient_funds")
	case errors.Is(err, repository.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, repository.ErrEmailTaken):
		h.respondError(w, http.StatusConflict, "email_taken")
	case errors.Is(err, service.ErrInvalidCredentials):
		h.respondError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, service.ErrInvalidAmount):
		h.respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, provider.ErrUnavailable):
		h.respondError(w, http.StatusBadGateway, "provider_unavailable")
	case errors.As(err, &rejected):
		h.respondError(w, http.StatusUnprocessableEntity, rejected.Reason)
	default:
		slog.Error("unhandled service error", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
