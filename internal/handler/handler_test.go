package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"tpia/config"
	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/ledger"
	"tpia/internal/repository"
	"tpia/internal/service"
	"tpia/internal/testutil"
	"tpia/internal/txn"
)

func init() { gin.SetMode(gin.TestMode) }

const webhookSecret = "whsec"

type fixture struct {
	router  *gin.Engine
	ledger  *ledger.Ledger
	userID  uint
	adminID uint
}

// asUser stands in for AuthRequired: the caller id comes from X-User.
func asUser(c *gin.Context) {
	if v := c.GetHeader("X-User"); v != "" {
		id, _ := strconv.ParseUint(v, 10, 64)
		c.Set("user_id", uint(id))
		c.Set("role", c.GetHeader("X-Role"))
	}
	c.Next()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	runner := txn.NewAtomic(db)
	book := ledger.New(db, runner)
	deps := service.Deps{DB: db, Runner: runner, Ledger: book, Econ: econ.Static(econ.Defaults())}
	clusters := service.NewClusterService(deps, domain.DefaultClusterCapacity)
	units := service.NewUnitService(deps, clusters)
	testutil.SeedCommodity(t, db, "GOLD")

	user := testutil.SeedUser(t, db, "ada", true)
	admin := testutil.SeedUser(t, db, "root", true)
	_, err := book.OpenWallet(context.Background(), user.ID)
	require.NoError(t, err)

	uh := NewUnitHandler(units)
	ah := NewAdminHandler(AdminDeps{
		AdminRepo:   repository.NewAdminRepository(db),
		Users:       repository.NewUserRepository(db),
		Commodities: repository.NewCommodityRepository(db),
		Units:       units,
		Clusters:    clusters,
		Cycles:      service.NewCycleProcessor(deps, clusters),
		Withdrawals: service.NewWithdrawalService(deps),
		Audit:       service.NewAuditService(repository.NewAuditLogRepository(db), nil),
	})
	webhook := NewPaymentWebhookHandler(service.NewDepositService(deps), &config.PaymentConfig{WebhookSecret: webhookSecret, Provider: "paystack"})
	wallet := NewWalletHandler(book)
	withdrawals := NewWithdrawalHandler(service.NewWithdrawalService(deps))

	r := gin.New()
	r.POST("/webhooks/payments", webhook.Handle)
	api := r.Group("/", asUser)
	api.GET("/wallet", wallet.GetBalance)
	api.POST("/units", uh.Purchase)
	api.GET("/units/:id", uh.Get)
	api.POST("/withdrawals", withdrawals.Create)
	api.GET("/admin/dashboard", ah.Dashboard)
	api.POST("/admin/units/:id/approve", ah.ApproveUnit)
	api.POST("/admin/units/:id/reject", ah.RejectUnit)
	api.POST("/admin/units/:id/complete-cycle", ah.CompleteCycle)
	api.POST("/admin/withdrawals/:id/reject", ah.RejectWithdrawal)
	return &fixture{router: r, ledger: book, userID: user.ID, adminID: admin.ID}
}

func (f *fixture) do(method, path string, userID uint, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-User", strconv.FormatUint(uint64(userID), 10))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) webhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signature)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWebhookCreditsOnceWithValidSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"reference":"PSK-1","status":"success","user_id":` + strconv.Itoa(int(f.userID)) + `,"amount":"1500000"}`)

	require.Equal(t, http.StatusUnauthorized, f.webhook(body, "deadbeef").Code)

	w := f.webhook(body, sign(body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["credited"])

	w = f.webhook(body, sign(body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decode(t, w)["credited"])

	wallet, err := f.ledger.GetWallet(context.Background(), f.userID)
	require.NoError(t, err)
	require.Equal(t, "1500000", wallet.Balance.String())
}

func TestWebhookIgnoresFailedEvents(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"reference":"PSK-2","status":"failed","user_id":1,"amount":"10"}`)
	w := f.webhook(body, sign(body))
	require.Equal(t, http.StatusOK, w.Code)
	_, credited := decode(t, w)["credited"]
	require.False(t, credited)
}

func TestPurchaseAndApproveOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/units", f.userID, gin.H{"commodity": "GOLD"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "insufficient_funds", decode(t, w)["code"])

	body := []byte(`{"reference":"PSK-3","status":"success","user_id":` + strconv.Itoa(int(f.userID)) + `,"amount":"1000000"}`)
	require.Equal(t, http.StatusOK, f.webhook(body, sign(body)).Code)

	w = f.do(http.MethodPost, "/units", f.userID, gin.H{"commodity": "GOLD", "cycle_start_mode": "immediate"})
	require.Equal(t, http.StatusCreated, w.Code)
	unit := decode(t, w)
	require.Equal(t, "TPIA-000001", unit["code"])
	require.Equal(t, string(domain.UnitPendingApproval), unit["status"])

	w = f.do(http.MethodPost, "/admin/units/1/approve", f.adminID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(domain.UnitActive), decode(t, w)["status"])

	w = f.do(http.MethodPost, "/admin/units/1/approve", f.adminID, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/admin/dashboard", f.adminID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	require.EqualValues(t, 1, stats["active_units"])
}

func TestUnitsAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/units/42", f.userID, nil).Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/units/abc", f.userID, nil).Code)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"reference":"PSK-4","status":"success","user_id":` + strconv.Itoa(int(f.userID)) + `,"amount":"1000000"}`)
	require.Equal(t, http.StatusOK, f.webhook(body, sign(body)).Code)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/units", f.userID, gin.H{"commodity": "GOLD"}).Code)

	w := f.do(http.MethodPost, "/admin/units/1/reject", f.adminID, gin.H{"reason": " "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/admin/units/1/reject", f.adminID, gin.H{"reason": "duplicate order"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(domain.UnitRejected), decode(t, w)["status"])
}

func TestAdminActionsRejectMalformedBodies(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/admin/units/1/complete-cycle", f.adminID, json.RawMessage(`{"force":"yes"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid request", decode(t, w)["error"])

	w = f.do(http.MethodPost, "/admin/units/1/reject", f.adminID, json.RawMessage(`{"reason":42}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid request", decode(t, w)["error"])

	w = f.do(http.MethodPost, "/admin/withdrawals/1/reject", f.adminID, json.RawMessage(`{"note":7}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// an omitted body is fine and reaches the service
	w = f.do(http.MethodPost, "/admin/units/1/complete-cycle", f.adminID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWithdrawalRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/withdrawals", f.userID, gin.H{"amount": "0", "destination": "0123456789"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteErrorHidesUnmappedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, errors.New("db exploded"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	require.Len(t, c.Errors, 1)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	writeError(c, domain.ErrWindowClosed)
	require.Equal(t, http.StatusConflict, w.Code)
}
