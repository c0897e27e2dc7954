package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
)

type createCycleRequest struct {
	Name         string  `json:"name"`
	DeliveryDate string  `json:"delivery_date"`
	Notes        *string `json:"notes"`
}

type addMemberRequest struct {
	EmployeeID snowflake.ID  `json:"employee_id"`
	Reason     string        `json:"reason"`
	KitID      *snowflake.ID `json:"kit_id"`
}

func (s *Server) CreateCycle(c *gin.Context) {
	var req createCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var deliveryDate time.Time
	if strings.TrimSpace(req.DeliveryDate) != "" {
		parsed, err := parseDate(req.DeliveryDate)
		if err != nil {
			AbortWithError(c, newValidationError("delivery_date", "invalid_delivery_date", "invalid delivery_date"))
			return
		}
		deliveryDate = parsed
	}

	resp, err := s.cycleSvc.Create(c.Request.Context(), cycledomain.CreateRequest{
		Name:         req.Name,
		DeliveryDate: deliveryDate,
		Notes:        req.Notes,
	}, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("cycle_id", resp.Cycle.ID.String())
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCycles(c *gin.Context) {
	var query struct {
		pagination.Pagination
		State string `form:"state"`
		Year  string `form:"year"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	year, err := parseOptionalInt(query.Year)
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}

	req := cycledomain.ListRequest{
		State:      cycledomain.CycleState(strings.ToLower(strings.TrimSpace(query.State))),
		Pagination: query.Pagination,
	}
	if year != nil {
		req.Year = *year
	}

	resp, err := s.cycleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) GetActiveCycle(c *gin.Context) {
	resp, err := s.cycleSvc.GetActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ValidateCycleWindow(c *gin.Context) {
	deliveryDate, err := parseDate(c.Query("delivery_date"))
	if err != nil {
		AbortWithError(c, newValidationError("delivery_date", "invalid_delivery_date", "invalid delivery_date"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.cycleSvc.ValidateWindow(c.Request.Context(), deliveryDate)})
}

func (s *Server) CycleStats(c *gin.Context) {
	resp, err := s.cycleSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCycle(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	resp, err := s.cycleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCycle(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	if err := s.cycleSvc.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) CloseCycle(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	resp, err := s.cycleSvc.Close(c.Request.Context(), id, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCycleMembers(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		State  string `form:"state"`
		AreaID string `form:"area_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	areaID, err := parseOptionalSnowflakeID(query.AreaID)
	if err != nil {
		AbortWithError(c, newValidationError("area_id", "invalid_area_id", "invalid area_id"))
		return
	}

	filter := cycledomain.MemberFilter{
		State:      cycledomain.MemberState(strings.ToLower(strings.TrimSpace(query.State))),
		Pagination: query.Pagination,
	}
	if areaID != nil {
		filter.AreaID = *areaID
	}

	resp, err := s.cycleSvc.ListMembers(c.Request.Context(), id, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) CycleMemberSummary(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	resp, err := s.cycleSvc.MemberSummary(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddManualMember(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cycleSvc.AddManualMember(c.Request.Context(), id, cycledomain.AddMemberRequest{
		EmployeeID: req.EmployeeID,
		Reason:     req.Reason,
		KitID:      req.KitID,
	}, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) BackfillKits(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	updated, err := s.kitSvc.BackfillMissingKits(c.Request.Context(), id, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": updated}})
}

func (s *Server) ListPendingSizes(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	resp, err := s.orderSvc.PendingSizes(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp, "total": len(resp)})
}

func (s *Server) GenerateOrder(c *gin.Context) {
	id, ok := s.cycleParam(c)
	if !ok {
		return
	}

	resp, err := s.orderSvc.Generate(c.Request.Context(), id, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// cycleParam parses the :id parameter and tags the request log with it.
func (s *Server) cycleParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	c.Set("cycle_id", id.String())
	return id, true
}
