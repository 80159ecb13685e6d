package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type duePeriodicPay struct {
	ID           snowflake.ID
	SubscriberID snowflake.ID
	Name         string
	Amount       decimal.Decimal
	PeriodDays   int
	NextPay      time.Time
}

// PeriodicPaysJob charges every recurring pay whose next_pay has arrived and
// advances its schedule. A failed row is skipped and retried on the next run.
func (s *Scheduler) PeriodicPaysJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		var due []duePeriodicPay
		err := s.db.WithContext(ctx).Raw(
			`SELECT id, subscriber_id, name, amount, period_days, next_pay
			 FROM periodic_pays
			 WHERE next_pay <= ?
			 ORDER BY next_pay
			 LIMIT ?`,
			now, s.cfg.BatchSize,
		).Scan(&due).Error
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(due) == 0 {
			break
		}

		processed := 0
		for _, pay := range due {
			if err := s.chargePeriodic(ctx, pay, now); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("periodic pay failed",
					zap.String("periodic_pay_id", pay.ID.String()),
					zap.String("subscriber_id", pay.SubscriberID.String()),
					zap.Error(err),
				)
				continue
			}
			processed++
		}
		if processed == 0 {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) chargePeriodic(ctx context.Context, pay duePeriodicPay, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledgerSvc.CreditInTx(ctx, tx, ledgerdomain.CreditRequest{
			SubscriberID: pay.SubscriberID,
			Amount:       pay.Amount.Neg(),
			Comment:      fmt.Sprintf("Periodic pay '%s'", pay.Name),
		}); err != nil {
			return err
		}

		// Advance from the scheduled time, not from now, so a delayed run does
		// not drift the schedule.
		nextPay := pay.NextPay.AddDate(0, 0, pay.PeriodDays)
		if !nextPay.After(now) {
			nextPay = now.AddDate(0, 0, pay.PeriodDays)
		}
		return tx.Exec(
			`UPDATE periodic_pays SET next_pay = ?, last_pay = ? WHERE id = ?`,
			nextPay, now, pay.ID,
		).Error
	})
}

type expiredAssignment struct {
	ID           snowflake.ID
	SubscriberID snowflake.ID
	TariffID     snowflake.ID
	Deadline     time.Time

	TariffTitle string
	TariffPrice decimal.Decimal
	Autoconnect bool
	Balance     decimal.Decimal
}

// ExpireAssignmentsJob handles assignments past their deadline. Subscribers
// with autoconnect and enough balance get charged and extended for another
// month; everyone else is disconnected and the gateway is told about it.
func (s *Scheduler) ExpireAssignmentsJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		var expired []expiredAssignment
		err := s.db.WithContext(ctx).Raw(
			`SELECT a.id, a.subscriber_id, a.tariff_id, a.deadline,
			        t.title AS tariff_title, t.price AS tariff_price,
			        s.autoconnect_service AS autoconnect, s.balance
			 FROM tariff_assignments a
			 JOIN tariffs t ON t.id = a.tariff_id
			 JOIN subscribers s ON s.id = a.subscriber_id
			 WHERE a.deadline IS NOT NULL AND a.deadline <= ?
			 ORDER BY a.deadline
			 LIMIT ?`,
			now, s.cfg.BatchSize,
		).Scan(&expired).Error
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(expired) == 0 {
			break
		}

		processed := 0
		for _, asg := range expired {
			var err error
			if asg.Autoconnect && asg.Balance.GreaterThanOrEqual(asg.TariffPrice) {
				err = s.extendAssignment(ctx, asg, now)
			} else {
				err = s.disconnectAssignment(ctx, asg)
			}
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("assignment expiry failed",
					zap.String("assignment_id", asg.ID.String()),
					zap.String("subscriber_id", asg.SubscriberID.String()),
					zap.Error(err),
				)
				continue
			}
			processed++
		}
		if processed == 0 {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) extendAssignment(ctx context.Context, asg expiredAssignment, now time.Time) error {
	deadline := asg.Deadline.AddDate(0, 1, 0)
	if !deadline.After(now) {
		deadline = now.AddDate(0, 1, 0)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if asg.TariffPrice.IsPositive() {
			if err := s.ledgerSvc.CreditInTx(ctx, tx, ledgerdomain.CreditRequest{
				SubscriberID: asg.SubscriberID,
				Amount:       asg.TariffPrice.Neg(),
				Comment:      fmt.Sprintf("Service '%s' has connected automatically until %s", asg.TariffTitle, deadline.Format("02.01.2006 15:04")),
			}); err != nil {
				return err
			}
		}
		return tx.Exec(
			`UPDATE tariff_assignments SET time_start = ?, deadline = ? WHERE id = ?`,
			now, deadline, asg.ID,
		).Error
	})
	if err != nil {
		return err
	}

	if err := s.gatewaySvc.SyncSubscriber(ctx, asg.SubscriberID); err != nil {
		s.log.Warn("gateway sync failed after autoconnect",
			zap.String("subscriber_id", asg.SubscriberID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Scheduler) disconnectAssignment(ctx context.Context, asg expiredAssignment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM tariff_assignments WHERE id = ?`, asg.ID).Error; err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE subscribers SET current_tariff_id = NULL, is_active = FALSE, updated_at = ? WHERE id = ?`,
			s.clock.Now(), asg.SubscriberID,
		).Error
	})
	if err != nil {
		return err
	}

	if err := s.gatewaySvc.SyncSubscriber(ctx, asg.SubscriberID); err != nil {
		s.log.Warn("gateway sync failed after disconnect",
			zap.String("subscriber_id", asg.SubscriberID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// ResyncFailedJob retries subscribers whose last gateway push did not land.
// SyncSubscriber clears sync_dirty itself on success.
func (s *Scheduler) ResyncFailedJob(ctx context.Context) error {
	var dirty []struct {
		ID snowflake.ID
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM subscribers
		 WHERE sync_dirty = TRUE AND nas_id IS NOT NULL
		 ORDER BY updated_at
		 LIMIT ?`,
		s.cfg.BatchSize,
	).Scan(&dirty).Error
	if err != nil {
		return err
	}

	var jobErr error
	for _, row := range dirty {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.gatewaySvc.SyncSubscriber(ctx, row.ID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("gateway resync failed",
				zap.String("subscriber_id", row.ID.String()),
				zap.Error(err),
			)
		}
	}
	return jobErr
}
