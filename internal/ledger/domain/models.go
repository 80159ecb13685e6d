package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Entry is an immutable balance-change record. Entries are only ever
// inserted; the subscriber's cached balance is the sum of its entries.
type Entry struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubscriberID snowflake.ID    `gorm:"not null;index" json:"subscriber_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"amount"`
	Comment      string          `gorm:"type:text;not null;default:''" json:"comment"`
	AuthorID     *snowflake.ID   `json:"author_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Entry) TableName() string { return "ledger_entries" }

var (
	ErrInvalidSubscriber  = errors.New("invalid_subscriber")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrSubscriberNotFound = errors.New("ledger_subscriber_not_found")
)

type CreditRequest struct {
	SubscriberID snowflake.ID
	// Amount may be any sign; a debit is a negative credit.
	Amount   decimal.Decimal
	Comment  string
	AuthorID *snowflake.ID
}

type Service interface {
	// Credit appends one entry and adjusts the cached balance atomically.
	Credit(context.Context, CreditRequest) error
	// CreditInTx is Credit composed into the caller's transaction.
	CreditInTx(ctx context.Context, tx *gorm.DB, req CreditRequest) error
	History(ctx context.Context, subscriberID snowflake.ID, limit int) ([]Entry, error)
	// Balance computes the sum of entries; used for reconciliation against
	// the cached subscriber balance.
	Balance(ctx context.Context, subscriberID snowflake.ID) (decimal.Decimal, error)
}
