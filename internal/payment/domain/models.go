package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ExternalPayLog records one payment received from the terminal network.
// PayID is the idempotency key: the unique index makes re-submission of the
// same payment a no-op regardless of concurrency.
type ExternalPayLog struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	PayID        string          `gorm:"column:pay_id;type:text;not null;uniqueIndex" json:"pay_id"`
	SubscriberID snowflake.ID    `gorm:"not null;index" json:"subscriber_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"amount"`
	TradePoint   int             `gorm:"not null;default:0" json:"trade_point"`
	ReceiptNum   int             `gorm:"not null;default:0" json:"receipt_num"`
	Payload      datatypes.JSON  `gorm:"type:text" json:"-"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ExternalPayLog) TableName() string { return "external_pay_logs" }

// PeriodicPay is a recurring auto-charge configured per subscriber.
type PeriodicPay struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubscriberID snowflake.ID    `gorm:"not null;index" json:"subscriber_id"`
	Name         string          `gorm:"type:text;not null" json:"name"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"amount"`
	PeriodDays   int             `gorm:"not null;default:30" json:"period_days"`
	NextPay      time.Time       `gorm:"not null;index" json:"next_pay"`
	LastPay      *time.Time      `json:"last_pay,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PeriodicPay) TableName() string { return "periodic_pays" }

// Terminal protocol status codes. The closed set must round-trip exactly for
// wire compatibility with the terminal network.
const (
	StatusFetchOK           = 21
	StatusPayOK             = 22
	StatusCheckOK           = 11
	StatusTransactionOK     = 111
	StatusUnknownPayment    = -10
	StatusUnknownSubscriber = -40
	StatusDatabaseError     = -90
	StatusDuplicatePayment  = -100
	StatusMalformedRequest  = -101
)

// Terminal amount bounds reported in account-info responses.
var (
	MinPayAmount = decimal.NewFromInt(10)
	MaxPayAmount = decimal.NewFromInt(5000)
)

var (
	ErrDuplicatePayment   = errors.New("duplicate_payment")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrSubscriberNotFound = errors.New("payment_subscriber_not_found")
	ErrMalformedRequest   = errors.New("malformed_payment_request")
	ErrPeriodicNotFound   = errors.New("periodic_pay_not_found")
)

type IngestRequest struct {
	PayID      string
	Account    string
	Amount     decimal.Decimal
	TradePoint int
	ReceiptNum int
	Raw        []byte
}

// Ack confirms an accepted payment.
type Ack struct {
	PayID  string          `json:"pay_id"`
	Amount decimal.Decimal `json:"amount"`
	Status int             `json:"status_code"`
}

type AccountInfo struct {
	Account   string          `json:"account"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Status    int             `json:"status_code"`
}

type PaymentStatus struct {
	PayID     string          `json:"pay_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    int             `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type DailySum struct {
	Day   string          `json:"day"`
	Total decimal.Decimal `json:"total"`
}

type UpsertPeriodicRequest struct {
	ID           snowflake.ID // zero creates
	SubscriberID snowflake.ID
	Name         string
	Amount       decimal.Decimal
	PeriodDays   int
	NextPay      time.Time
}

type Service interface {
	IngestExternalPayment(context.Context, IngestRequest) (Ack, error)
	QueryPaymentStatus(ctx context.Context, payID string) (PaymentStatus, error)
	FetchAccountInfo(ctx context.Context, account string) (AccountInfo, error)
	DailySums(ctx context.Context, since time.Time) ([]DailySum, error)

	UpsertPeriodic(context.Context, UpsertPeriodicRequest) (PeriodicPay, error)
	DeletePeriodic(ctx context.Context, id snowflake.ID) error
	ListPeriodic(ctx context.Context, subscriberID snowflake.ID) ([]PeriodicPay, error)
}
