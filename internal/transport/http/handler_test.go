package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultaplaca/internal/model"
	"consultaplaca/internal/repository"
)

type mockAccounts struct {
	accounts map[string]*model.Account // keyed by api token
}

func (m *mockAccounts) Register(ctx context.Context, email, password string) (*model.Account, error) {
	return &model.Account{ID: 1, Email: email, APIToken: "tok-1"}, nil
}

func (m *mockAccounts) Login(ctx context.Context, email, password string) (*model.Account, error) {
	return &model.Account{ID: 1, Email: email, APIToken: "tok-1"}, nil
}

func (m *mockAccounts) ByToken(ctx context.Context, apiToken string) (*model.Account, error) {
	acc, ok := m.accounts[apiToken]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return acc, nil
}

type mockCharger struct {
	outcome    *model.LookupOutcome
	err        error
	gotAccount int64
	gotPlate   string
	gotTier    model.LookupTier
	calls      int
}

func (m *mockCharger) Charge(ctx context.Context, accountID int64, plate string, tier model.LookupTier) (*model.LookupOutcome, error) {
	m.calls++
	m.gotAccount = accountID
	m.gotPlate = plate
	m.gotTier = tier
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func (m *mockCharger) Fee() decimal.Decimal {
	return decimal.RequireFromString("11.99")
}

type mockBilling struct {
	checkout *model.Checkout
	balance  decimal.Decimal
	history  []model.HistoryEntry
	err      error
}

func (m *mockBilling) CreateCheckout(ctx context.Context, accountID int64, amount decimal.Decimal) (*model.Checkout, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.checkout, nil
}

func (m *mockBilling) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return m.balance, m.err
}

func (m *mockBilling) History(ctx context.Context, accountID int64) ([]model.HistoryEntry, error) {
	return m.history, m.err
}

type mockReconciler struct {
	notifications []model.PaymentNotification
	err           error
}

func (m *mockReconciler) HandleNotification(ctx context.Context, n model.PaymentNotification) error {
	m.notifications = append(m.notifications, n)
	return m.err
}

type mockBus struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (m *mockBus) Publish(topic string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, data)
	return nil
}

func newTestHandler(accounts *mockAccounts, charger *mockCharger, billing *mockBilling, reconciler *mockReconciler, bus *mockBus) http.Handler {
	if accounts == nil {
		accounts = &mockAccounts{}
	}
	if charger == nil {
		charger = &mockCharger{}
	}
	if billing == nil {
		billing = &mockBilling{}
	}
	if reconciler == nil {
		reconciler = &mockReconciler{}
	}

	var h *Handler
	if bus != nil {
		h = NewHandler(accounts, charger, billing, reconciler, bus)
	} else {
		h = NewHandler(accounts, charger, billing, reconciler, nil)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func authedAccounts() *mockAccounts {
	return &mockAccounts{accounts: map[string]*model.Account{
		"tok-1": {ID: 7, Email: "user@example.com", APIToken: "tok-1"},
	}}
}

func TestPaymentNotification_MalformedBodyIsAcked(t *testing.T) {
	reconciler := &mockReconciler{}
	mux := newTestHandler(nil, nil, nil, reconciler, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications", strings.NewReader("this is not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// Anything but 2xx triggers a provider retry storm.
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reconciler.notifications, 1)
}

func TestPaymentNotification_QueryParamShape(t *testing.T) {
	reconciler := &mockReconciler{}
	mux := newTestHandler(nil, nil, nil, reconciler, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications?topic=payment&id=555", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reconciler.notifications, 1)
	assert.Equal(t, "payment", reconciler.notifications[0].Topic)
	assert.Equal(t, "555", reconciler.notifications[0].ID)
}

func TestPaymentNotification_BodyShape(t *testing.T) {
	reconciler := &mockReconciler{}
	mux := newTestHandler(nil, nil, nil, reconciler, nil)

	body := `{"type":"payment","data":{"id":"555"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reconciler.notifications, 1)
	assert.Equal(t, "payment", reconciler.notifications[0].Type)
	assert.Equal(t, "555", reconciler.notifications[0].Data.ID)
}

func TestPaymentNotification_ReconcilerFailureStillAcked(t *testing.T) {
	reconciler := &mockReconciler{err: assert.AnError}
	mux := newTestHandler(nil, nil, nil, reconciler, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications?topic=payment&id=555", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentNotification_QueuedWhenBusConfigured(t *testing.T) {
	reconciler := &mockReconciler{}
	bus := &mockBus{}
	mux := newTestHandler(nil, nil, nil, reconciler, bus)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications?topic=merchant_order&id=900", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, reconciler.notifications)

	require.Len(t, bus.topics, 1)
	assert.Equal(t, "payments.notifications", bus.topics[0])

	var n model.PaymentNotification
	require.NoError(t, json.Unmarshal(bus.payloads[0], &n))
	assert.Equal(t, "merchant_order", n.Topic)
	assert.Equal(t, "900", n.ID)
}

func TestPaymentNotification_BusFailureFallsBackInline(t *testing.T) {
	reconciler := &mockReconciler{}
	bus := &mockBus{err: assert.AnError}
	mux := newTestHandler(nil, nil, nil, reconciler, bus)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications?topic=payment&id=555", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reconciler.notifications, 1)
}

func TestPaidLookup_RequiresAuth(t *testing.T) {
	charger := &mockCharger{}
	mux := newTestHandler(authedAccounts(), charger, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/placafipe/ABC1D23/completa", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, charger.calls)
}

func TestPaidLookup_Success(t *testing.T) {
	balance := decimal.RequireFromString("8.01")
	charger := &mockCharger{outcome: &model.LookupOutcome{
		Plate:   "ABC1D23",
		Data:    json.RawMessage(`{"marca":"Fiat"}`),
		Charged: decimal.RequireFromString("11.99"),
		Balance: &balance,
	}}
	mux := newTestHandler(authedAccounts(), charger, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/placafipe/ABC1D23/completa", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, charger.gotAccount)
	assert.Equal(t, "ABC1D23", charger.gotPlate)
	assert.Equal(t, model.TierFull, charger.gotTier)
}

func TestPaidLookup_InsufficientFunds(t *testing.T) {
	charger := &mockCharger{err: repository.ErrInsufficientFunds}
	mux := newTestHandler(authedAccounts(), charger, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/placafipe/ABC1D23/completa", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_funds", body["error"])
}

func TestFreeLookup_Anonymous(t *testing.T) {
	charger := &mockCharger{outcome: &model.LookupOutcome{
		Plate:   "ABC1D23",
		Data:    json.RawMessage(`{"marca":"Fiat"}`),
		Charged: decimal.Zero,
	}}
	mux := newTestHandler(authedAccounts(), charger, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/placafipe/ABC1D23", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, charger.gotAccount)
	assert.Equal(t, model.TierFree, charger.gotTier)
}

func TestFreeLookup_AuthenticatedPassesAccount(t *testing.T) {
	charger := &mockCharger{outcome: &model.LookupOutcome{Plate: "ABC1D23", Charged: decimal.Zero}}
	mux := newTestHandler(authedAccounts(), charger, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/placafipe/ABC1D23", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, charger.gotAccount)
}

func TestRegister_InvalidBody(t *testing.T) {
	mux := newTestHandler(nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":"not-an-email","password":"short"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_Success(t *testing.T) {
	mux := newTestHandler(nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":"user@example.com","password":"s3cret-pass"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var acc model.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "user@example.com", acc.Email)
	assert.NotEmpty(t, acc.APIToken)
}

func TestBalance_RequiresAuth(t *testing.T) {
	mux := newTestHandler(authedAccounts(), nil, &mockBilling{balance: decimal.RequireFromString("42.00")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistory_EmptyIsArray(t *testing.T) {
	mux := newTestHandler(authedAccounts(), nil, &mockBilling{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":[]}`, rec.Body.String())
}
