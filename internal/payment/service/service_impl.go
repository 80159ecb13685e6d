package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	"github.com/smallbiznis/abonix/internal/metrics"
	paymentdomain "github.com/smallbiznis/abonix/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	LedgerSvc ledgerdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	ledgerSvc ledgerdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		ledgerSvc: p.LedgerSvc,
		metrics:   p.Metrics,
	}
}

// IngestExternalPayment credits a subscriber for a terminal payment exactly
// once. The pay_id uniqueness constraint carries the whole idempotency
// guarantee; no in-memory locking is involved, so arbitrary concurrent
// retries from the terminal network are safe.
func (s *Service) IngestExternalPayment(ctx context.Context, req paymentdomain.IngestRequest) (paymentdomain.Ack, error) {
	req.PayID = strings.TrimSpace(req.PayID)
	if req.PayID == "" || !req.Amount.IsPositive() {
		return paymentdomain.Ack{}, paymentdomain.ErrMalformedRequest
	}

	subID, err := s.resolveAccount(ctx, req.Account)
	if err != nil {
		return paymentdomain.Ack{}, err
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim the idempotency key first. A concurrent duplicate loses
		// here and never reaches the ledger.
		result := tx.WithContext(ctx).Exec(
			`INSERT INTO external_pay_logs (id, pay_id, subscriber_id, amount, trade_point, receipt_num, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (pay_id) DO NOTHING`,
			s.genID.Generate(),
			req.PayID,
			subID,
			req.Amount,
			req.TradePoint,
			req.ReceiptNum,
			datatypes.JSON(req.Raw),
			now,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return paymentdomain.ErrDuplicatePayment
		}

		return s.ledgerSvc.CreditInTx(ctx, tx, ledgerdomain.CreditRequest{
			SubscriberID: subID,
			Amount:       req.Amount,
			Comment:      fmt.Sprintf("KonikaForward %s", req.Amount.StringFixed(2)),
		})
	})
	if err != nil {
		if err == paymentdomain.ErrDuplicatePayment && s.metrics != nil {
			s.metrics.PaymentsDuplicate.Inc()
		}
		return paymentdomain.Ack{}, err
	}

	if s.metrics != nil {
		s.metrics.PaymentsIngested.WithLabelValues(strconv.Itoa(req.TradePoint)).Inc()
	}
	s.log.Info("external payment accepted",
		zap.String("pay_id", req.PayID),
		zap.String("amount", req.Amount.String()),
		zap.Int("trade_point", req.TradePoint))

	return paymentdomain.Ack{
		PayID:  req.PayID,
		Amount: req.Amount,
		Status: paymentdomain.StatusPayOK,
	}, nil
}

func (s *Service) QueryPaymentStatus(ctx context.Context, payID string) (paymentdomain.PaymentStatus, error) {
	payID = strings.TrimSpace(payID)
	if payID == "" {
		return paymentdomain.PaymentStatus{}, paymentdomain.ErrMalformedRequest
	}
	var row paymentdomain.ExternalPayLog
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM external_pay_logs WHERE pay_id = ?`, payID,
	).Scan(&row).Error
	if err != nil {
		return paymentdomain.PaymentStatus{}, err
	}
	if row.ID == 0 {
		return paymentdomain.PaymentStatus{}, paymentdomain.ErrPaymentNotFound
	}
	return paymentdomain.PaymentStatus{
		PayID:     row.PayID,
		Amount:    row.Amount,
		Status:    paymentdomain.StatusTransactionOK,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Service) FetchAccountInfo(ctx context.Context, account string) (paymentdomain.AccountInfo, error) {
	subID, err := s.resolveAccount(ctx, account)
	if err != nil {
		return paymentdomain.AccountInfo{}, err
	}
	var row struct {
		FIO     string
		Balance string
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT fio, balance FROM subscribers WHERE id = ?`, subID,
	).Scan(&row).Error; err != nil {
		return paymentdomain.AccountInfo{}, err
	}
	balance, err := decimalFromDB(row.Balance)
	if err != nil {
		return paymentdomain.AccountInfo{}, err
	}
	return paymentdomain.AccountInfo{
		Account:   account,
		Name:      row.FIO,
		Balance:   balance,
		MinAmount: paymentdomain.MinPayAmount,
		MaxAmount: paymentdomain.MaxPayAmount,
		Status:    paymentdomain.StatusFetchOK,
	}, nil
}

func (s *Service) DailySums(ctx context.Context, since time.Time) ([]paymentdomain.DailySum, error) {
	var rows []struct {
		Day   string
		Total string
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT DATE(created_at) AS day, COALESCE(SUM(amount), 0) AS total
		 FROM external_pay_logs
		 WHERE created_at >= ?
		 GROUP BY DATE(created_at)
		 ORDER BY day`, since,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]paymentdomain.DailySum, 0, len(rows))
	for _, row := range rows {
		total, err := decimalFromDB(row.Total)
		if err != nil {
			return nil, err
		}
		out = append(out, paymentdomain.DailySum{Day: row.Day, Total: total})
	}
	return out, nil
}

func (s *Service) UpsertPeriodic(ctx context.Context, req paymentdomain.UpsertPeriodicRequest) (paymentdomain.PeriodicPay, error) {
	if req.SubscriberID == 0 || !req.Amount.IsPositive() {
		return paymentdomain.PeriodicPay{}, paymentdomain.ErrMalformedRequest
	}
	if req.PeriodDays <= 0 {
		req.PeriodDays = 30
	}
	now := time.Now().UTC()
	if req.NextPay.IsZero() {
		req.NextPay = now
	}

	if req.ID == 0 {
		pp := paymentdomain.PeriodicPay{
			ID:           s.genID.Generate(),
			SubscriberID: req.SubscriberID,
			Name:         strings.TrimSpace(req.Name),
			Amount:       req.Amount,
			PeriodDays:   req.PeriodDays,
			NextPay:      req.NextPay.UTC(),
			CreatedAt:    now,
		}
		err := s.db.WithContext(ctx).Exec(
			`INSERT INTO periodic_pays (id, subscriber_id, name, amount, period_days, next_pay, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			pp.ID, pp.SubscriberID, pp.Name, pp.Amount, pp.PeriodDays, pp.NextPay, pp.CreatedAt,
		).Error
		if err != nil {
			return paymentdomain.PeriodicPay{}, err
		}
		return pp, nil
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE periodic_pays SET name = ?, amount = ?, period_days = ?, next_pay = ?
		 WHERE id = ? AND subscriber_id = ?`,
		strings.TrimSpace(req.Name), req.Amount, req.PeriodDays, req.NextPay.UTC(),
		req.ID, req.SubscriberID,
	)
	if result.Error != nil {
		return paymentdomain.PeriodicPay{}, result.Error
	}
	if result.RowsAffected == 0 {
		return paymentdomain.PeriodicPay{}, paymentdomain.ErrPeriodicNotFound
	}
	return paymentdomain.PeriodicPay{
		ID:           req.ID,
		SubscriberID: req.SubscriberID,
		Name:         strings.TrimSpace(req.Name),
		Amount:       req.Amount,
		PeriodDays:   req.PeriodDays,
		NextPay:      req.NextPay.UTC(),
	}, nil
}

func (s *Service) DeletePeriodic(ctx context.Context, id snowflake.ID) error {
	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM periodic_pays WHERE id = ?`, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return paymentdomain.ErrPeriodicNotFound
	}
	return nil
}

func (s *Service) ListPeriodic(ctx context.Context, subscriberID snowflake.ID) ([]paymentdomain.PeriodicPay, error) {
	var pays []paymentdomain.PeriodicPay
	err := s.db.WithContext(ctx).
		Model(&paymentdomain.PeriodicPay{}).
		Where("subscriber_id = ?", subscriberID).
		Order("next_pay asc").
		Find(&pays).Error
	if err != nil {
		return nil, err
	}
	return pays, nil
}

func (s *Service) resolveAccount(ctx context.Context, account string) (snowflake.ID, error) {
	account = strings.TrimSpace(account)
	parsed, err := strconv.ParseInt(account, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, paymentdomain.ErrMalformedRequest
	}
	var count int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscribers WHERE id = ?`, parsed,
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, paymentdomain.ErrSubscriberNotFound
	}
	return snowflake.ID(parsed), nil
}
