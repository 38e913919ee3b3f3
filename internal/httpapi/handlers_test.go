package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"comms-platform/internal/audit"
	"comms-platform/internal/auth"
	"comms-platform/internal/billing"
	"comms-platform/internal/charge"
	"comms-platform/internal/config"
	"comms-platform/internal/dispatch"
	"comms-platform/internal/ledger"
	"comms-platform/internal/quote"
	"comms-platform/internal/rbac"
	"comms-platform/internal/recipients"
	"comms-platform/internal/reporting"
	"comms-platform/internal/sendgate"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPricer struct{ cents int64 }

func (p fixedPricer) UnitPriceCents(context.Context, string) (int64, error) { return p.cents, nil }

type stubCharger struct {
	calls int
	err   error
}

func (c *stubCharger) ChargeNow(context.Context, string, int64, billing.ChargeReason) (string, error) {
	c.calls++
	if c.err != nil {
		return "in_failed", c.err
	}
	return "in_ok", nil
}

type fixture struct {
	router   *gin.Engine
	store    *ledger.MemoryStore
	ledger   *ledger.Service
	contacts *recipients.MemoryResolver
	queue    *dispatch.MemoryQueue
	charger  *stubCharger
}

// withIdentity stands in for token verification.
func withIdentity(c *gin.Context) {
	userID := c.GetHeader("X-Test-User")
	role := c.GetHeader("X-Test-Role")
	if role == "" {
		role = rbac.RoleUser
	}
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), userID, role))
	c.Next()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	store.PutUser(ledger.BillingState{UserID: "u1", PlanTier: billing.PlanPro, PaymentMethodAttached: true, PaymentCustomerRef: "cus_1"})
	led := ledger.NewService(store, audit.NewService(audit.NewMemoryRepo()))
	policy := billing.DefaultPolicy()
	engine := quote.NewEngine(led, fixedPricer{cents: 5}, policy)
	ch := &stubCharger{}
	q := dispatch.NewMemoryQueue()
	gate := sendgate.New(led, ch, engine, q, sendgate.NewMemoryLocker(), sendgate.Options{Requote: true})

	contacts := recipients.NewMemoryResolver()
	var members []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		contacts.PutContact(recipients.Contact{ID: id, UserID: "u1", Phone: fmt.Sprintf("+447911%06d", 100000+i), Email: id + "@example.com"})
		members = append(members, id)
	}
	contacts.PutGroup("g1", "u1", members...)
	contacts.PutContact(recipients.Contact{ID: "mail", UserID: "u1", Email: "only@example.com"})
	contacts.PutContact(recipients.Contact{ID: "bad", UserID: "u1", Phone: "+1555"})

	h := Handlers{
		Quotes:     engine,
		Gate:       gate,
		Recipients: contacts,
		Ledger:     led,
		Reports:    reporting.NewService(store),
		Policy:     policy,
	}

	r := gin.New()
	v1 := r.Group("/v1", withIdentity)
	v1.POST("/blasts/quote", h.Quote)
	v1.POST("/blasts/send", RequireIntlNotBlocked(led), h.Send)
	v1.GET("/billing/intl", h.GetIntlBilling)
	v1.GET("/billing/intl/charges", h.GetIntlCharges)
	admin := v1.Group("/admin", rbac.RequireAnyRole(rbac.RoleSupport))
	admin.GET("/users/:user_id/intl", h.AdminGetIntlBilling)
	admin.POST("/users/:user_id/unblock", h.AdminUnblock)
	admin.POST("/users/:user_id/reset-cycle", rbac.RequireAnyRole(rbac.RoleAdmin), h.AdminResetCycle)

	return &fixture{router: r, store: store, ledger: led, contacts: contacts, queue: q, charger: ch}
}

func (f *fixture) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "u1")
	req.Header.Set("X-Test-Role", role)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (f *fixture) quote(t *testing.T, contactIDs ...string) quote.Quote {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/blasts/quote", "", gin.H{"groupIds": []string{"g1"}, "contactIds": contactIDs, "channels": []string{"sms"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[quote.Quote](t, rr)
}

func TestQuote_PricesGroup(t *testing.T) {
	f := newFixture(t)
	q := f.quote(t)
	assert.False(t, q.Blocked)
	assert.Equal(t, 5, q.IntlCount)
	assert.Equal(t, int64(35), q.EstimatedIntlCents)
	assert.True(t, q.RequiresConfirm)
	assert.False(t, q.RequiresImmediateCharge)
}

func TestQuote_Validation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/blasts/quote", "", gin.H{"groupIds": []string{"g1"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/blasts/quote", "", gin.H{"contactIds": []string{"mail"}, "channels": []string{"SMS"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"no_sms_recipients"}`, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/v1/blasts/quote", "", gin.H{"contactIds": []string{"bad"}, "channels": []string{"sms"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"invalid_phone","number":"+1555"}`, rr.Body.String())
}

func TestQuote_BlockedAccountIsAQuote(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser(ledger.BillingState{UserID: "u1", PlanTier: billing.PlanFree})
	q := f.quote(t)
	assert.True(t, q.Blocked)
	assert.Equal(t, billing.BlockedFreePlan, q.BlockedReason)
}

func TestSend_ConfirmedQuoteIsQueued(t *testing.T) {
	f := newFixture(t)
	q := f.quote(t)

	rr := f.do(t, http.MethodPost, "/v1/blasts/send", "", gin.H{
		"groupIds": []string{"g1"},
		"channels": []string{"sms", "email"},
		"body":     "hello",
		"quote":    q,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[map[string]any](t, rr)
	assert.Equal(t, true, res["ok"])
	assert.EqualValues(t, 10, res["queued"])
	assert.NotContains(t, res, "InvoiceID")
	require.Len(t, f.queue.Jobs(), 1)

	st, err := f.ledger.GetState(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(35), st.SpendSinceLastChargeCents)
}

func TestSend_StaleQuoteReturnsFreshOne(t *testing.T) {
	f := newFixture(t)
	q := f.quote(t)
	q.EstimatedIntlCents = 1

	rr := f.do(t, http.MethodPost, "/v1/blasts/send", "", gin.H{"groupIds": []string{"g1"}, "channels": []string{"sms"}, "body": "hi", "quote": q})
	require.Equal(t, http.StatusConflict, rr.Code)
	body := decode[struct {
		Error string      `json:"error"`
		Quote quote.Quote `json:"quote"`
	}](t, rr)
	assert.Equal(t, "quote_stale", body.Error)
	assert.Equal(t, int64(35), body.Quote.EstimatedIntlCents)
	assert.Empty(t, f.queue.Jobs())
}

func TestSend_BodyRequired(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/v1/blasts/send", "", gin.H{"groupIds": []string{"g1"}, "channels": []string{"sms"}, "body": "  "})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"body_required"}`, rr.Body.String())
}

func TestSend_BlockedAccount(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser(ledger.BillingState{UserID: "u1", PlanTier: billing.PlanPro, PaymentMethodAttached: true, BlockedReason: billing.BlockedPaymentFailed})

	rr := f.do(t, http.MethodPost, "/v1/blasts/send", "", gin.H{"groupIds": []string{"g1"}, "channels": []string{"email"}, "body": "hi"})
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.JSONEq(t, `{"error":"intl_blocked","reason":"payment_failed"}`, rr.Body.String())
}

func TestSend_ChargeFailure(t *testing.T) {
	f := newFixture(t)
	var members []string
	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("big%d", i)
		f.contacts.PutContact(recipients.Contact{ID: id, UserID: "u1", Phone: fmt.Sprintf("+447911%06d", 200000+i)})
		members = append(members, id)
	}
	f.contacts.PutGroup("big", "u1", members...)
	f.charger.err = &charge.Error{Step: charge.StepPay, InvoiceID: "in_failed", Status: "open", Err: charge.ErrChargeFailed}

	rr := f.do(t, http.MethodPost, "/v1/blasts/quote", "", gin.H{"groupIds": []string{"big"}, "channels": []string{"sms"}})
	require.Equal(t, http.StatusOK, rr.Code)
	q := decode[quote.Quote](t, rr)
	require.True(t, q.RequiresImmediateCharge)

	rr = f.do(t, http.MethodPost, "/v1/blasts/send", "", gin.H{"groupIds": []string{"big"}, "channels": []string{"sms"}, "body": "hi", "quote": q})
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.JSONEq(t, `{"error":"payment_failed"}`, rr.Body.String())
	assert.Equal(t, 1, f.charger.calls)
	assert.Empty(t, f.queue.Jobs())
}

func TestGetIntlBilling(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.RecordSpend(context.Background(), "u1", 120)
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/v1/billing/intl", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.EqualValues(t, 120, body["intlSpendSinceChargeCents"])
	assert.Equal(t, false, body["blocked"])
	assert.Equal(t, map[string]any{"softPerSend": float64(1000), "hardAccum": float64(2000)}, body["caps"])
}

func TestGetIntlCharges(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.RecordCharge(context.Background(), ledger.ChargeReceipt{UserID: "u1", InvoiceID: "in_1", AmountCents: 1500, Reason: billing.ReasonSoftCapPerSend})
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/v1/billing/intl/charges", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[reporting.ChargeSummary](t, rr)
	assert.Equal(t, 1, out.TotalCharges)
	assert.Equal(t, 1, out.PendingCharges)
	assert.Equal(t, int64(1500), out.SoftCapCents)

	rr = f.do(t, http.MethodGet, "/v1/billing/intl/charges?from=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/billing/intl/charges?from=2030-01-02T00:00:00Z&to=2030-01-01T00:00:00Z", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdmin_UnblockAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutUser(ledger.BillingState{UserID: "u2", PlanTier: billing.PlanBusiness, PaymentMethodAttached: true, BlockedReason: billing.BlockedPaymentFailed, SpendThisCycleCents: 900})

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/admin/users/u2/unblock", rbac.RoleUser, nil).Code)

	rr := f.do(t, http.MethodPost, "/v1/admin/users/u2/unblock", rbac.RoleSupport, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st, err := f.ledger.GetState(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, st.Blocked())

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/admin/users/u2/reset-cycle", rbac.RoleSupport, nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/admin/users/u2/reset-cycle", rbac.RoleAdmin, nil).Code)
	st, err = f.ledger.GetState(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, st.SpendThisCycleCents)

	rr = f.do(t, http.MethodPost, "/v1/admin/users/nobody/unblock", rbac.RoleAdmin, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"user_not_found"}`, rr.Body.String())
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	post := func(h Handlers, body string) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/v1/auth/login", h.Login)
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusNotFound, post(Handlers{Auth: m}, `{"user_id":"u1","role":"user"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(Handlers{Auth: m, DevLogin: true}, `{"user_id":"u1","role":"root"}`).Code)

	rr := post(Handlers{Auth: m, DevLogin: true}, `{"user_id":"u1","role":"admin"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]string](t, rr)
	claims, err := m.Verify(body["access_token"], auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, rbac.RoleAdmin, claims.Role)
}
