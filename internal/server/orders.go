package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
)

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CycleID string `form:"cycle_id"`
		State   string `form:"state"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cycleID, err := parseOptionalSnowflakeID(query.CycleID)
	if err != nil {
		AbortWithError(c, newValidationError("cycle_id", "invalid_cycle_id", "invalid cycle_id"))
		return
	}

	req := orderdomain.ListRequest{
		State:      orderdomain.OrderState(strings.ToLower(strings.TrimSpace(query.State))),
		Pagination: query.Pagination,
	}
	if cycleID != nil {
		req.CycleID = *cycleID
	}

	resp, err := s.orderSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) OrderStats(c *gin.Context) {
	resp, err := s.orderSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.Fetch(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RegisterReception(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.ReceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.RegisterReception(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
