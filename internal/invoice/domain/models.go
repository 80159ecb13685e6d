package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnsettled Status = "unsettled"
	StatusSettled   Status = "settled"
)

// Invoice is a billing obligation, not a cash movement; it stays independent
// of the ledger until settled.
type Invoice struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubscriberID snowflake.ID    `gorm:"not null;index" json:"subscriber_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"amount"`
	Status       Status          `gorm:"type:text;not null;default:'unsettled'" json:"status"`
	Comment      string          `gorm:"type:text;not null;default:''" json:"comment"`
	AuthorID     *snowflake.ID   `json:"author_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

var (
	ErrInvalidAmount  = errors.New("invalid_invoice_amount")
	ErrNotFound       = errors.New("invoice_not_found")
	ErrAlreadySettled = errors.New("invoice_already_settled")
)

type CreateInvoiceRequest struct {
	SubscriberID snowflake.ID
	Amount       decimal.Decimal
	Comment      string
	AuthorID     *snowflake.ID
	// Settled creates the invoice already closed, mirroring the operator
	// checkbox on the receipt form.
	Settled bool
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	ListBySubscriber(ctx context.Context, subscriberID snowflake.ID) ([]Invoice, error)
	// ListDebtors returns all open obligations across subscribers.
	ListDebtors(ctx context.Context) ([]Invoice, error)
	// Settle closes the invoice and debits the subscriber's ledger by the
	// invoice amount in the same transaction.
	Settle(ctx context.Context, invoiceID snowflake.ID, actorID *snowflake.ID) error
}
