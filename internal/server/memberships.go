package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
)

type updateMemberStateRequest struct {
	State string  `json:"state"`
	Notes *string `json:"notes"`
}

func (s *Server) RemoveMember(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.cycleSvc.RemoveMember(c.Request.Context(), id, actorID(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) UpdateMemberState(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateMemberStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cycleSvc.UpdateMemberState(c.Request.Context(), id, cycledomain.UpdateStateRequest{
		State: cycledomain.MemberState(strings.ToLower(strings.TrimSpace(req.State))),
		Notes: req.Notes,
	}, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
