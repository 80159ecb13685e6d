package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	"github.com/shopspring/decimal"
)

type topUpRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Comment string `json:"comment"`
	ActorID string `json:"actor_id"`
}

func (s *Server) TopUpBalance(c *gin.Context) {
	var body topUpRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := ledgerdomain.CreditRequest{
		SubscriberID: sub.ID,
		Amount:       amount,
		Comment:      strings.TrimSpace(body.Comment),
	}
	if req.Comment == "" {
		req.Comment = "fill account through admin side"
	}
	if body.ActorID != "" {
		actorID, err := snowflake.ParseString(body.ActorID)
		if err != nil {
			AbortWithError(c, newValidationError("actor_id", "invalid_id", "invalid actor id"))
			return
		}
		req.AuthorID = &actorID
	}

	if err := s.ledgerSvc.Credit(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) LedgerHistory(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := queryInt(c, "limit")
	entries, err := s.ledgerSvc.History(c.Request.Context(), sub.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) PingSubscriber(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ip := strings.TrimSpace(c.Query("ip"))
	if ip == "" && sub.IPAddress != nil {
		ip = *sub.IPAddress
	}

	if err := s.gatewaySvc.Ping(c.Request.Context(), sub.ID, ip); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) FreeLease(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.gatewaySvc.FreeLease(c.Request.Context(), sub.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
