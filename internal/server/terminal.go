package server

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/abonix/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// Timestamp layout mandated by the terminal protocol.
const terminalTimeLayout = "02.01.2006 15:04"

const (
	actFetchInfo = 1
	actMakePay   = 4
	actCheckPay  = 7
)

type payTransaction struct {
	PayID     string `xml:"pay_id"`
	ServiceID string `xml:"service_id,omitempty"`
	Amount    string `xml:"amount"`
	Status    int    `xml:"status"`
	TimeStamp string `xml:"time_stamp"`
}

type payResponse struct {
	XMLName     xml.Name        `xml:"pay-response"`
	Balance     string          `xml:"balance,omitempty"`
	Name        string          `xml:"name,omitempty"`
	Account     string          `xml:"account,omitempty"`
	ServiceID   string          `xml:"service_id,omitempty"`
	MinAmount   string          `xml:"min_amount,omitempty"`
	MaxAmount   string          `xml:"max_amount,omitempty"`
	PayID       string          `xml:"pay_id,omitempty"`
	Amount      string          `xml:"amount,omitempty"`
	StatusCode  int             `xml:"status_code"`
	TimeStamp   string          `xml:"time_stamp"`
	Description string          `xml:"description,omitempty"`
	Transaction *payTransaction `xml:"transaction,omitempty"`
}

// TerminalPay implements the payment terminal wire protocol. Every outcome,
// including failure, is a 200 with a status_code the terminal understands.
func (s *Server) TerminalPay(c *gin.Context) {
	now := time.Now().Format(terminalTimeLayout)

	act, err := strconv.Atoi(strings.TrimSpace(c.Query("ACT")))
	if err != nil || act <= 0 {
		s.terminalError(c, paymentdomain.StatusMalformedRequest, "ACT less than zero")
		return
	}

	switch act {
	case actFetchInfo:
		s.terminalFetchInfo(c, now)
	case actMakePay:
		s.terminalMakePay(c, now)
	case actCheckPay:
		s.terminalCheckPay(c, now)
	default:
		s.terminalError(c, paymentdomain.StatusMalformedRequest, "ACT is not passed")
	}
}

func (s *Server) terminalFetchInfo(c *gin.Context, now string) {
	account := strings.TrimSpace(c.Query("PAY_ACCOUNT"))

	info, err := s.paymentSvc.FetchAccountInfo(c.Request.Context(), account)
	if err != nil {
		s.terminalError(c, terminalStatusFor(err), "")
		return
	}

	c.XML(http.StatusOK, payResponse{
		Balance:    info.Balance.String(),
		Name:       info.Name,
		Account:    info.Account,
		ServiceID:  s.cfg.PayServiceID,
		MinAmount:  info.MinAmount.String(),
		MaxAmount:  info.MaxAmount.String(),
		StatusCode: info.Status,
		TimeStamp:  now,
	})
}

func (s *Server) terminalMakePay(c *gin.Context, now string) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Query("PAY_AMOUNT")))
	if err != nil {
		s.terminalError(c, paymentdomain.StatusMalformedRequest, "")
		return
	}
	tradePoint, _ := strconv.Atoi(c.Query("TRADE_POINT"))
	receiptNum, _ := strconv.Atoi(c.Query("RECEIPT_NUM"))

	ack, err := s.paymentSvc.IngestExternalPayment(c.Request.Context(), paymentdomain.IngestRequest{
		PayID:      strings.TrimSpace(c.Query("PAY_ID")),
		Account:    strings.TrimSpace(c.Query("PAY_ACCOUNT")),
		Amount:     amount,
		TradePoint: tradePoint,
		ReceiptNum: receiptNum,
		Raw:        []byte(c.Request.URL.RawQuery),
	})
	if err != nil {
		s.terminalError(c, terminalStatusFor(err), "")
		return
	}

	c.XML(http.StatusOK, payResponse{
		PayID:      ack.PayID,
		ServiceID:  c.Query("SERVICE_ID"),
		Amount:     ack.Amount.String(),
		StatusCode: ack.Status,
		TimeStamp:  now,
	})
}

func (s *Server) terminalCheckPay(c *gin.Context, now string) {
	status, err := s.paymentSvc.QueryPaymentStatus(c.Request.Context(), strings.TrimSpace(c.Query("PAY_ID")))
	if err != nil {
		s.terminalError(c, terminalStatusFor(err), "")
		return
	}

	c.XML(http.StatusOK, payResponse{
		StatusCode: paymentdomain.StatusCheckOK,
		TimeStamp:  now,
		Transaction: &payTransaction{
			PayID:     status.PayID,
			ServiceID: c.Query("SERVICE_ID"),
			Amount:    status.Amount.String(),
			Status:    status.Status,
			TimeStamp: status.CreatedAt.Format(terminalTimeLayout),
		},
	})
}

func (s *Server) terminalError(c *gin.Context, code int, description string) {
	c.XML(http.StatusOK, payResponse{
		StatusCode:  code,
		TimeStamp:   time.Now().Format(terminalTimeLayout),
		Description: description,
	})
}

func terminalStatusFor(err error) int {
	switch {
	case errors.Is(err, paymentdomain.ErrSubscriberNotFound):
		return paymentdomain.StatusUnknownSubscriber
	case errors.Is(err, paymentdomain.ErrDuplicatePayment):
		return paymentdomain.StatusDuplicatePayment
	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return paymentdomain.StatusUnknownPayment
	case errors.Is(err, paymentdomain.ErrMalformedRequest):
		return paymentdomain.StatusMalformedRequest
	default:
		return paymentdomain.StatusDatabaseError
	}
}
