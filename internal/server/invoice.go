package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/abonix/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

func (s *Server) ListInvoices(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoices, err := s.invoiceSvc.ListBySubscriber(c.Request.Context(), sub.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

type createInvoiceRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Comment string `json:"comment"`
	ActorID string `json:"actor_id"`
	Settled bool   `json:"settled"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var body createInvoiceRequest
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

	req := invoicedomain.CreateInvoiceRequest{
		SubscriberID: sub.ID,
		Amount:       amount,
		Comment:      body.Comment,
		Settled:      body.Settled,
	}
	if body.ActorID != "" {
		actorID, err := snowflake.ParseString(body.ActorID)
		if err != nil {
			AbortWithError(c, newValidationError("actor_id", "invalid_id", "invalid actor id"))
			return
		}
		req.AuthorID = &actorID
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) ListDebtors(c *gin.Context) {
	invoices, err := s.invoiceSvc.ListDebtors(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

type settleInvoiceRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *Server) SettleInvoice(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var body settleInvoiceRequest
	_ = c.ShouldBindJSON(&body)
	var actorID *snowflake.ID
	if body.ActorID != "" {
		parsed, err := snowflake.ParseString(body.ActorID)
		if err != nil {
			AbortWithError(c, newValidationError("actor_id", "invalid_id", "invalid actor id"))
			return
		}
		actorID = &parsed
	}

	if err := s.invoiceSvc.Settle(c.Request.Context(), id, actorID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
