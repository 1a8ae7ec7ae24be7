package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tpia/internal/middleware"
	"tpia/internal/service"
)

type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(svc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc}
}

// Create handles POST /me/withdrawals. Funds are held until an admin decides.
func (h *WithdrawalHandler) Create(c *gin.Context) {
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Destination string          `json:"destination" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := h.svc.Request(c.Request.Context(), middleware.GetUserID(c), req.Amount, req.Destination)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *WithdrawalHandler) List(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, err := h.svc.ListForUser(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "page": page, "limit": limit})
}
