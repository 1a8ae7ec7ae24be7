package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tpia/internal/domain"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrWalletNotFound, http.StatusNotFound},
	{domain.ErrUnitNotFound, http.StatusNotFound},
	{domain.ErrClusterNotFound, http.StatusNotFound},
	{domain.ErrCycleNotFound, http.StatusNotFound},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrCommodityNotFound, http.StatusNotFound},
	{domain.ErrWithdrawalNotFound, http.StatusNotFound},

	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidProfitMode, http.StatusBadRequest},
	{domain.ErrInvalidCycleStartMode, http.StatusBadRequest},
	{domain.ErrRejectReasonRequired, http.StatusBadRequest},
	{domain.ErrMissingReference, http.StatusBadRequest},
	{domain.ErrInvalidSettings, http.StatusBadRequest},

	{domain.ErrKYCRequired, http.StatusForbidden},

	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientLockedBalance, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientPendingWithdrawalBalance, http.StatusUnprocessableEntity},

	{domain.ErrInvalidStateTransition, http.StatusConflict},
	{domain.ErrWindowNotOpen, http.StatusConflict},
	{domain.ErrWindowClosed, http.StatusConflict},
	{domain.ErrWrongPhase, http.StatusConflict},
	{domain.ErrStaleCycle, http.StatusConflict},
	{domain.ErrCycleNotDue, http.StatusConflict},
	{domain.ErrClusterNotFull, http.StatusConflict},
	{domain.ErrClusterFull, http.StatusConflict},
	{domain.ErrConcurrentUpdate, http.StatusConflict},
}

// writeError maps engine errors to a status and a client-safe message.
// Anything unmapped is a 500 and is attached to the context for logging.
func writeError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": e.err.Error(), "code": codeOf(e.status)})
			return
		}
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func codeOf(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnprocessableEntity:
		return "insufficient_funds"
	default:
		return "conflict"
	}
}

func parsePagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// bindOptional binds a JSON body that may be omitted. A body that is present
// but malformed gets a 400 and false.
func bindOptional(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}
