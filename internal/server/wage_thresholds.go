package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	wagethresholddomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
)

type upsertWageThresholdRequest struct {
	MonthlyValue decimal.Decimal `json:"monthly_value"`
	Note         *string         `json:"note"`
}

func (s *Server) ListWageThresholds(c *gin.Context) {
	resp, err := s.wageSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetWageThreshold(c *gin.Context) {
	year, err := pathYear(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.wageSvc.Get(c.Request.Context(), year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertWageThreshold(c *gin.Context) {
	year, err := pathYear(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req upsertWageThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.wageSvc.Upsert(c.Request.Context(), wagethresholddomain.UpsertRequest{
		Year:         year,
		MonthlyValue: req.MonthlyValue,
		Note:         req.Note,
	}, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteWageThreshold(c *gin.Context) {
	year, err := pathYear(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.wageSvc.Delete(c.Request.Context(), year, actorID(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetEligibleRange(c *gin.Context) {
	year, err := pathYear(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.wageSvc.EligibleRange(c.Request.Context(), year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
