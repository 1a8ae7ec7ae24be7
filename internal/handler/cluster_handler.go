package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tpia/internal/service"
)

type ClusterHandler struct {
	clusters *service.ClusterService
}

func NewClusterHandler(clusters *service.ClusterService) *ClusterHandler {
	return &ClusterHandler{clusters: clusters}
}

// List handles GET /clusters?commodity_id=.
func (h *ClusterHandler) List(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	commodityID, _ := strconv.ParseUint(c.Query("commodity_id"), 10, 64)
	list, err := h.clusters.List(c.Request.Context(), uint(commodityID), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "page": page, "limit": limit, "capacity": h.clusters.Capacity()})
}

func (h *ClusterHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cl, err := h.clusters.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}
