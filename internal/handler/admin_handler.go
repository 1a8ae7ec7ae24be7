package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tpia/internal/domain"
	"tpia/internal/middleware"
	"tpia/internal/models"
	"tpia/internal/repository"
	"tpia/internal/service"
	"tpia/internal/ws"
)

type AdminHandler struct {
	adminRepo   *repository.AdminRepository
	users       *repository.UserRepository
	commodities *repository.CommodityRepository
	units       *service.UnitService
	clusters    *service.ClusterService
	cycles      *service.CycleProcessor
	withdrawals *service.WithdrawalService
	settings    *service.SettingsService
	audit       *service.AuditService
	hub         *ws.Hub
}

type AdminDeps struct {
	AdminRepo   *repository.AdminRepository
	Users       *repository.UserRepository
	Commodities *repository.CommodityRepository
	Units       *service.UnitService
	Clusters    *service.ClusterService
	Cycles      *service.CycleProcessor
	Withdrawals *service.WithdrawalService
	Settings    *service.SettingsService
	Audit       *service.AuditService
	Hub         *ws.Hub
}

func NewAdminHandler(d AdminDeps) *AdminHandler {
	return &AdminHandler{
		adminRepo:   d.AdminRepo,
		users:       d.Users,
		commodities: d.Commodities,
		units:       d.Units,
		clusters:    d.Clusters,
		cycles:      d.Cycles,
		withdrawals: d.Withdrawals,
		settings:    d.Settings,
		audit:       d.Audit,
		hub:         d.Hub,
	}
}

func actor(c *gin.Context) *uint {
	id := middleware.GetUserID(c)
	return &id
}

// Dashboard handles GET /admin/dashboard.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.adminRepo.GetDashboardStats(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	clusters, err := h.clusters.StatusCounts(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	online := 0
	if h.hub != nil {
		online = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "clusters": clusters, "connected_clients": online})
}

// Reports handles GET /admin/reports?days=30.
func (h *AdminHandler) Reports(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	ctx := c.Request.Context()
	since := time.Now().UTC().AddDate(0, 0, -days)
	purchases, err := h.adminRepo.PurchasesByDay(ctx, since)
	if err != nil {
		writeError(c, err)
		return
	}
	profit, err := h.adminRepo.ProfitByDay(ctx, since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "purchases": purchases, "profit": profit})
}

// ListUnits handles GET /admin/units?status=pending_approval.
func (h *AdminHandler) ListUnits(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	status := domain.UnitStatus(c.DefaultQuery("status", string(domain.UnitPendingApproval)))
	list, err := h.units.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]unitView, len(list))
	for i := range list {
		out[i] = viewOf(&list[i])
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "page": page, "limit": limit})
}

func (h *AdminHandler) ApproveUnit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := h.units.Approve(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(u))
}

func (h *AdminHandler) RejectUnit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !bindOptional(c, &req) {
		return
	}
	u, err := h.units.Reject(c.Request.Context(), id, strings.TrimSpace(req.Reason), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(u))
}

// CompleteCycle handles POST /admin/units/:id/complete-cycle. Force closes a
// cycle before its end date.
func (h *AdminHandler) CompleteCycle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ExpectedCycle int  `json:"expected_cycle"`
		Force         bool `json:"force"`
	}
	if !bindOptional(c, &req) {
		return
	}
	ctx := c.Request.Context()
	res, err := h.cycles.CompleteUnit(ctx, id, service.CompleteOptions{ExpectedCycle: req.ExpectedCycle, Force: req.Force})
	if err != nil {
		writeError(c, err)
		return
	}
	h.audit.Record(ctx, actor(c), "unit.complete_cycle", "unit", strconv.FormatUint(uint64(id), 10),
		map[string]any{"cycle": res.Cycle, "forced": req.Force, "outcome": res.Outcome})
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) StartCluster(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	started, err := h.clusters.StartCluster(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cluster_id": id, "started_units": started})
}

func (h *AdminHandler) SweepCluster(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := h.cycles.SweepCluster(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// SweepAll handles POST /admin/cycles/sweep.
func (h *AdminHandler) SweepAll(c *gin.Context) {
	report, err := h.cycles.SweepAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	status := strings.ToUpper(c.DefaultQuery("status", domain.WithdrawalPending))
	list, err := h.withdrawals.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "page": page, "limit": limit})
}

type decisionRequest struct {
	Note string `json:"note"`
}

func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	h.decideWithdrawal(c, true)
}

func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	h.decideWithdrawal(c, false)
}

func (h *AdminHandler) decideWithdrawal(c *gin.Context, approve bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req decisionRequest
	if !bindOptional(c, &req) {
		return
	}
	var (
		w   *models.Withdrawal
		err error
	)
	if approve {
		w, err = h.withdrawals.Approve(c.Request.Context(), id, actor(c), req.Note)
	} else {
		w, err = h.withdrawals.Reject(c.Request.Context(), id, actor(c), strings.TrimSpace(req.Note))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	snap, err := h.settings.Current(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": snap.Settings()})
}

// UpdateSettings handles PUT /admin/settings with a flat key/value body.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "settings object required"})
		return
	}
	snap, err := h.settings.Update(c.Request.Context(), req, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": snap.Settings()})
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	var kyc *bool
	if v := c.Query("kyc"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kyc filter"})
			return
		}
		kyc = &b
	}
	users, total, err := h.adminRepo.ListUsers(c.Request.Context(), c.Query("search"), kyc, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": total, "page": page, "limit": limit})
}

// SetKYC handles PATCH /admin/users/:id/kyc.
func (h *AdminHandler) SetKYC(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Verified *bool `json:"verified" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.users.SetKYC(ctx, id, *req.Verified); err != nil {
		writeError(c, err)
		return
	}
	h.audit.Record(ctx, actor(c), "user.kyc", "user", strconv.FormatUint(uint64(id), 10), map[string]any{"verified": *req.Verified})
	c.JSON(http.StatusOK, gin.H{"user_id": id, "kyc": *req.Verified})
}

func (h *AdminHandler) ListCommodities(c *gin.Context) {
	list, err := h.commodities.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// CreateCommodity handles POST /admin/commodities. New commodities start active.
func (h *AdminHandler) CreateCommodity(c *gin.Context) {
	var req struct {
		Code           string              `json:"code" binding:"required"`
		Name           string              `json:"name" binding:"required"`
		ProfitPerCycle decimal.NullDecimal `json:"profit_per_cycle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ProfitPerCycle.Valid && req.ProfitPerCycle.Decimal.IsNegative() {
		writeError(c, domain.ErrInvalidAmount)
		return
	}
	ctx := c.Request.Context()
	cm := &models.Commodity{
		Code:           strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:           req.Name,
		ProfitPerCycle: req.ProfitPerCycle,
		Active:         true,
	}
	if err := h.commodities.Create(ctx, cm); err != nil {
		writeError(c, err)
		return
	}
	h.audit.Record(ctx, actor(c), "commodity.create", "commodity", cm.Code, nil)
	c.JSON(http.StatusCreated, cm)
}

// SetCommodityActive handles PATCH /admin/commodities/:code.
func (h *AdminHandler) SetCommodityActive(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.commodities.SetActive(ctx, code, *req.Active); err != nil {
		writeError(c, err)
		return
	}
	h.audit.Record(ctx, actor(c), "commodity.set_active", "commodity", code, map[string]any{"active": *req.Active})
	c.JSON(http.StatusOK, gin.H{"code": code, "active": *req.Active})
}

func (h *AdminHandler) ListTransactions(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, total, err := h.adminRepo.ListTransactions(c.Request.Context(), c.Query("type"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) ListPayments(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, total, err := h.adminRepo.ListPayments(c.Request.Context(), strings.ToUpper(c.Query("status")), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// ListAudit handles GET /admin/audit?resource=unit.
func (h *AdminHandler) ListAudit(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	list, err := h.audit.List(c.Request.Context(), c.Query("resource"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "page": page, "limit": limit})
}
