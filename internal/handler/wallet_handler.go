package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tpia/internal/ledger"
	"tpia/internal/middleware"
)

type WalletHandler struct {
	ledger *ledger.Ledger
}

func NewWalletHandler(l *ledger.Ledger) *WalletHandler {
	return &WalletHandler{ledger: l}
}

// GetBalance handles GET /me/wallet. The wallet is opened on first access.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	w, err := h.ledger.OpenWallet(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":   ledger.CalculateBalances(w),
		"currency": w.Currency,
	})
}

// GetTransactions handles GET /me/wallet/transactions, newest first.
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, total, err := h.ledger.History(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
