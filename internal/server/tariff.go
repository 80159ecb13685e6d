package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tariffdomain "github.com/smallbiznis/abonix/internal/tariff/domain"
)

func (s *Server) GetActiveAssignment(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	asg, err := s.tariffSvc.ActiveAssignment(c.Request.Context(), sub.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": asg})
}

type pickTariffRequest struct {
	TariffID string `json:"tariff_id" binding:"required"`
	Deadline string `json:"deadline"`
	Comment  string `json:"comment"`
	ActorID  string `json:"actor_id"`
}

func (s *Server) PickTariff(c *gin.Context) {
	var body pickTariffRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	tariffID, err := snowflake.ParseString(body.TariffID)
	if err != nil {
		AbortWithError(c, newValidationError("tariff_id", "invalid_id", "invalid tariff id"))
		return
	}

	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := tariffdomain.PickTariffRequest{
		SubscriberID: sub.ID,
		TariffID:     tariffID,
		Comment:      body.Comment,
	}
	if body.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, body.Deadline)
		if err != nil {
			AbortWithError(c, newValidationError("deadline", "invalid_deadline", "invalid deadline"))
			return
		}
		req.Deadline = &deadline
	}
	if body.ActorID != "" {
		actorID, err := snowflake.ParseString(body.ActorID)
		if err != nil {
			AbortWithError(c, newValidationError("actor_id", "invalid_id", "invalid actor id"))
			return
		}
		req.ActorID = &actorID
	}

	result, err := s.tariffSvc.PickTariff(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"data": result.Assignment}
	if result.SyncWarning != "" {
		resp["warning"] = result.SyncWarning
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) Unsubscribe(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	asg, err := s.tariffSvc.ActiveAssignment(c.Request.Context(), sub.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if asg == nil {
		AbortWithError(c, tariffdomain.ErrAssignmentNotFound)
		return
	}

	if err := s.tariffSvc.Unsubscribe(c.Request.Context(), asg.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListGroupTariffs(c *gin.Context) {
	gid, err := snowflake.ParseString(c.Param("gid"))
	if err != nil {
		AbortWithError(c, newValidationError("gid", "invalid_group", "invalid group id"))
		return
	}

	tariffs, err := s.tariffSvc.ListByGroup(c.Request.Context(), gid)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tariffs})
}

type setGroupTariffsRequest struct {
	TariffIDs []string `json:"tariff_ids"`
}

func (s *Server) SetGroupTariffs(c *gin.Context) {
	gid, err := snowflake.ParseString(c.Param("gid"))
	if err != nil {
		AbortWithError(c, newValidationError("gid", "invalid_group", "invalid group id"))
		return
	}
	var body setGroupTariffsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	ids := make([]snowflake.ID, 0, len(body.TariffIDs))
	for _, raw := range body.TariffIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			AbortWithError(c, newValidationError("tariff_ids", "invalid_id", "invalid tariff id"))
			return
		}
		ids = append(ids, id)
	}

	if err := s.tariffSvc.SetGroupTariffs(c.Request.Context(), gid, ids); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
