package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tpia/config"
	"tpia/internal/service"
)

type PaymentWebhookHandler struct {
	deposits *service.DepositService
	cfg      *config.PaymentConfig
}

func NewPaymentWebhookHandler(deposits *service.DepositService, cfg *config.PaymentConfig) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{deposits: deposits, cfg: cfg}
}

type depositEvent struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	UserID    uint            `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
}

// Handle credits successful gateway deposits. The body is signed with
// HMAC-SHA256 in X-Webhook-Signature when a secret is configured. Replays
// and non-success events are acknowledged without effect.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if h.cfg.WebhookSecret != "" && !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	var ev depositEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if ev.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference required"})
		return
	}
	switch strings.ToLower(ev.Status) {
	case "success", "successful", "completed":
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	p, credited, err := h.deposits.Confirm(c.Request.Context(), service.DepositConfirmation{
		UserID:      ev.UserID,
		Amount:      ev.Amount,
		Currency:    ev.Currency,
		Provider:    h.cfg.Provider,
		ProviderRef: ev.Reference,
		Metadata:    map[string]any{"channel": ev.Channel},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "credited": credited, "payment_id": p.ID})
}

func (h *PaymentWebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
