package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/abonix/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	LedgerSvc ledgerdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	ledgerSvc ledgerdomain.Service
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		ledgerSvc: p.LedgerSvc,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if !req.Amount.IsPositive() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	var count int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscribers WHERE id = ?`, req.SubscriberID,
	).Scan(&count).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}
	if count == 0 {
		return invoicedomain.Invoice{}, subscriberdomain.ErrNotFound
	}

	now := time.Now().UTC()
	inv := invoicedomain.Invoice{
		ID:           s.genID.Generate(),
		SubscriberID: req.SubscriberID,
		Amount:       req.Amount,
		Status:       invoicedomain.StatusUnsettled,
		Comment:      strings.TrimSpace(req.Comment),
		AuthorID:     req.AuthorID,
		CreatedAt:    now,
	}
	if req.Settled {
		inv.Status = invoicedomain.StatusSettled
		inv.SettledAt = &now
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, subscriber_id, amount, status, comment, author_id, created_at, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.SubscriberID, inv.Amount, inv.Status, inv.Comment, inv.AuthorID, inv.CreatedAt, inv.SettledAt,
	).Error
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

func (s *Service) ListBySubscriber(ctx context.Context, subscriberID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("subscriber_id = ?", subscriberID).
		Order("created_at desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) ListDebtors(ctx context.Context) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("status = ?", invoicedomain.StatusUnsettled).
		Order("created_at asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) Settle(ctx context.Context, invoiceID snowflake.ID, actorID *snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv invoicedomain.Invoice
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM invoices WHERE id = ?`, invoiceID,
		).Scan(&inv).Error; err != nil {
			return err
		}
		if inv.ID == 0 {
			return invoicedomain.ErrNotFound
		}

		// Guard against double settlement under concurrent operators.
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, settled_at = ? WHERE id = ? AND status = ?`,
			invoicedomain.StatusSettled, time.Now().UTC(), invoiceID, invoicedomain.StatusUnsettled,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invoicedomain.ErrAlreadySettled
		}

		return s.ledgerSvc.CreditInTx(ctx, tx, ledgerdomain.CreditRequest{
			SubscriberID: inv.SubscriberID,
			Amount:       inv.Amount.Neg(),
			Comment:      fmt.Sprintf("Invoice %s settled", inv.ID.String()),
			AuthorID:     actorID,
		})
	})
}
