package server

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/abonix/internal/payment/domain"
	"github.com/shopspring/decimal"
)

func (s *Server) ListPeriodicPays(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pays, err := s.paymentSvc.ListPeriodic(c.Request.Context(), sub.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pays})
}

type upsertPeriodicRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	PeriodDays int    `json:"period_days"`
	NextPay    string `json:"next_pay"`
}

func (s *Server) UpsertPeriodicPay(c *gin.Context) {
	var body upsertPeriodicRequest
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

	req := paymentdomain.UpsertPeriodicRequest{
		SubscriberID: sub.ID,
		Name:         body.Name,
		Amount:       amount,
		PeriodDays:   body.PeriodDays,
	}
	if body.ID != "" {
		id, err := snowflake.ParseString(body.ID)
		if err != nil {
			AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
			return
		}
		req.ID = id
	}
	if body.NextPay != "" {
		nextPay, err := time.Parse(time.RFC3339, body.NextPay)
		if err != nil {
			AbortWithError(c, newValidationError("next_pay", "invalid_next_pay", "invalid next pay"))
			return
		}
		req.NextPay = nextPay
	}

	pay, err := s.paymentSvc.UpsertPeriodic(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pay})
}

func (s *Server) DeletePeriodicPay(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	if err := s.paymentSvc.DeletePeriodic(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// FinReport sums terminal payments per day. With f=csv it downloads as a
// spreadsheet-friendly file.
func (s *Server) FinReport(c *gin.Context) {
	since := time.Now().AddDate(0, -1, 0)
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, newValidationError("since", "invalid_since", "invalid since date"))
			return
		}
		since = parsed
	}

	sums, err := s.paymentSvc.DailySums(c.Request.Context(), since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("f") == "csv" {
		var b bytes.Buffer
		w := csv.NewWriter(&b)
		_ = w.Write([]string{"day", "total"})
		for _, row := range sums {
			_ = w.Write([]string{row.Day, row.Total.StringFixed(2)})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="fin_report.csv"`)
		c.Data(http.StatusOK, "text/csv", b.Bytes())
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sums})
}
