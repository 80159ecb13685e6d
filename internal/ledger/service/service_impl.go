package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	"github.com/smallbiznis/abonix/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *metrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.CreditInTx(ctx, tx, req)
	})
}

// CreditInTx adjusts the cached balance with a single relative UPDATE (the
// row lock taken by the update serializes concurrent credits) and appends
// the immutable entry. Never reads the balance back.
func (s *Service) CreditInTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.CreditRequest) error {
	if req.SubscriberID == 0 {
		return ledgerdomain.ErrInvalidSubscriber
	}
	if req.Amount.IsZero() {
		return ledgerdomain.ErrInvalidAmount
	}

	now := time.Now().UTC()
	result := tx.WithContext(ctx).Exec(
		`UPDATE subscribers SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		req.Amount,
		now,
		req.SubscriberID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrSubscriberNotFound
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, subscriber_id, amount, comment, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		req.SubscriberID,
		req.Amount,
		strings.TrimSpace(req.Comment),
		req.AuthorID,
		now,
	).Error; err != nil {
		return err
	}

	if s.metrics != nil {
		sign := "credit"
		if req.Amount.IsNegative() {
			sign = "debit"
		}
		s.metrics.LedgerEntries.WithLabelValues(sign).Inc()
	}
	return nil
}

func (s *Service) History(ctx context.Context, subscriberID snowflake.ID, limit int) ([]ledgerdomain.Entry, error) {
	if subscriberID == 0 {
		return nil, ledgerdomain.ErrInvalidSubscriber
	}
	if limit <= 0 {
		limit = 50
	}
	var entries []ledgerdomain.Entry
	err := s.db.WithContext(ctx).
		Model(&ledgerdomain.Entry{}).
		Where("subscriber_id = ?", subscriberID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) Balance(ctx context.Context, subscriberID snowflake.ID) (decimal.Decimal, error) {
	if subscriberID == 0 {
		return decimal.Zero, ledgerdomain.ErrInvalidSubscriber
	}
	var sum decimal.Decimal
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE subscriber_id = ?`,
		subscriberID,
	).Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
