package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ComputeEligible(c *gin.Context) {
	wage, err := parseDecimal(c.Query("wage"))
	if err != nil || !wage.IsPositive() {
		AbortWithError(c, newValidationError("wage", "invalid_wage", "invalid wage"))
		return
	}

	employees := s.eligibilitySvc.ComputeEligible(c.Request.Context(), wage)
	c.JSON(http.StatusOK, gin.H{"data": employees, "total": len(employees)})
}

func (s *Server) PreviewEligibility(c *gin.Context) {
	deliveryDate, err := parseDate(c.Query("delivery_date"))
	if err != nil {
		AbortWithError(c, newValidationError("delivery_date", "invalid_delivery_date", "invalid delivery_date"))
		return
	}

	resp, err := s.eligibilitySvc.Preview(c.Request.Context(), deliveryDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
