package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tpia/internal/middleware"
	"tpia/internal/service"
)

type DepositHandler struct {
	deposits *service.DepositService
}

func NewDepositHandler(deposits *service.DepositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

// List handles GET /me/deposits.
func (h *DepositHandler) List(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, err := h.deposits.ListForUser(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "page": page, "limit": limit})
}
