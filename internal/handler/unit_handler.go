package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tpia/internal/domain"
	"tpia/internal/middleware"
	"tpia/internal/models"
	"tpia/internal/service"
)

type UnitHandler struct {
	units *service.UnitService
}

func NewUnitHandler(units *service.UnitService) *UnitHandler {
	return &UnitHandler{units: units}
}

type unitView struct {
	*models.Unit
	Code string `json:"code"`
}

func viewOf(u *models.Unit) unitView {
	return unitView{Unit: u, Code: u.Code()}
}

// Purchase handles POST /units.
func (h *UnitHandler) Purchase(c *gin.Context) {
	var req struct {
		Commodity      string                `json:"commodity" binding:"required"`
		CycleStartMode domain.CycleStartMode `json:"cycle_start_mode"`
		ProfitMode     domain.ProfitMode     `json:"profit_mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.units.Purchase(c.Request.Context(), service.PurchaseRequest{
		UserID:         middleware.GetUserID(c),
		CommodityCode:  req.Commodity,
		CycleStartMode: req.CycleStartMode,
		ProfitMode:     req.ProfitMode,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(u))
}

func (h *UnitHandler) List(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, total, err := h.units.ListForUser(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]unitView, len(list))
	for i := range list {
		out[i] = viewOf(&list[i])
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "total": total, "page": page, "limit": limit})
}

// Get returns the unit with its profit history.
func (h *UnitHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := h.units.GetForUser(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(u))
}

func (h *UnitHandler) Cycles(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.units.GetForUser(ctx, middleware.GetUserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	list, err := h.units.Cycles(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": list})
}

// RequestExit handles POST /units/:id/exit.
func (h *UnitHandler) RequestExit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := h.units.RequestEarlyExit(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(u))
}

// SetProfitMode handles PATCH /units/:id/profit-mode.
func (h *UnitHandler) SetProfitMode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ProfitMode domain.ProfitMode `json:"profit_mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.units.SetProfitMode(c.Request.Context(), middleware.GetUserID(c), id, req.ProfitMode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(u))
}
