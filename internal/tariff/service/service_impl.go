package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/abonix/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	tariffdomain "github.com/smallbiznis/abonix/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	LedgerSvc  ledgerdomain.Service
	GatewaySvc gatewaydomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	ledgerSvc  ledgerdomain.Service
	gatewaySvc gatewaydomain.Service
}

func NewService(p Params) tariffdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("tariff.service"),
		genID:      p.GenID,
		ledgerSvc:  p.LedgerSvc,
		gatewaySvc: p.GatewaySvc,
	}
}

func (s *Service) PickTariff(ctx context.Context, req tariffdomain.PickTariffRequest) (tariffdomain.PickTariffResult, error) {
	if req.SubscriberID == 0 {
		return tariffdomain.PickTariffResult{}, tariffdomain.ErrInvalidSubscriber
	}

	var sub subscriberdomain.Subscriber
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers WHERE id = ?`, req.SubscriberID,
	).Scan(&sub).Error; err != nil {
		return tariffdomain.PickTariffResult{}, err
	}
	if sub.ID == 0 {
		return tariffdomain.PickTariffResult{}, subscriberdomain.ErrNotFound
	}
	if sub.GroupID == nil {
		return tariffdomain.PickTariffResult{}, tariffdomain.ErrSubscriberNoGroup
	}

	var trf tariffdomain.Tariff
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM tariffs WHERE id = ?`, req.TariffID,
	).Scan(&trf).Error; err != nil {
		return tariffdomain.PickTariffResult{}, err
	}
	if trf.ID == 0 {
		return tariffdomain.PickTariffResult{}, tariffdomain.ErrTariffNotFound
	}

	var offered int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM group_tariffs WHERE group_id = ? AND tariff_id = ?`,
		*sub.GroupID, trf.ID,
	).Scan(&offered).Error; err != nil {
		return tariffdomain.PickTariffResult{}, err
	}
	if offered == 0 {
		return tariffdomain.PickTariffResult{}, tariffdomain.ErrTariffNotOffered
	}

	now := time.Now().UTC()
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		if req.Deadline != nil {
			comment = fmt.Sprintf("Service '%s' has connected via admin until %s",
				trf.Title, req.Deadline.Format("2006-01-02 15:04:05"))
		} else {
			comment = fmt.Sprintf("Service '%s' has connected via admin", trf.Title)
		}
	}

	assignment := tariffdomain.Assignment{
		ID:           s.genID.Generate(),
		SubscriberID: sub.ID,
		TariffID:     trf.ID,
		TimeStart:    now,
		Deadline:     req.Deadline,
		CreatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replace any current assignment; the unique index on subscriber_id
		// keeps "at most one active" honest under races.
		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM tariff_assignments WHERE subscriber_id = ?`, sub.ID,
		).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO tariff_assignments (id, subscriber_id, tariff_id, time_start, deadline, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			assignment.ID, assignment.SubscriberID, assignment.TariffID,
			assignment.TimeStart, assignment.Deadline, assignment.CreatedAt,
		).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE subscribers SET current_tariff_id = ?, is_active = TRUE, updated_at = ? WHERE id = ?`,
			trf.ID, now, sub.ID,
		).Error; err != nil {
			return err
		}
		if trf.Price.IsPositive() {
			return s.ledgerSvc.CreditInTx(ctx, tx, ledgerdomain.CreditRequest{
				SubscriberID: sub.ID,
				Amount:       trf.Price.Neg(),
				Comment:      comment,
				AuthorID:     req.ActorID,
			})
		}
		return nil
	})
	if err != nil {
		return tariffdomain.PickTariffResult{}, err
	}

	result := tariffdomain.PickTariffResult{Assignment: assignment}

	// Gateway sync runs after the billing transaction has committed; a sync
	// failure surfaces as a warning, the assignment stands.
	if err := s.gatewaySvc.SyncSubscriber(ctx, sub.ID); err != nil {
		result.SyncWarning = err.Error()
	}
	return result, nil
}

func (s *Service) Unsubscribe(ctx context.Context, assignmentID snowflake.ID) error {
	if assignmentID == 0 {
		return tariffdomain.ErrAssignmentNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment tariffdomain.Assignment
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM tariff_assignments WHERE id = ?`, assignmentID,
		).Scan(&assignment).Error; err != nil {
			return err
		}
		if assignment.ID == 0 {
			return tariffdomain.ErrAssignmentNotFound
		}
		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM tariff_assignments WHERE id = ?`, assignmentID,
		).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE subscribers SET current_tariff_id = NULL, is_active = FALSE, updated_at = ? WHERE id = ?`,
			time.Now().UTC(), assignment.SubscriberID,
		).Error
	})
}

func (s *Service) ActiveAssignment(ctx context.Context, subscriberID snowflake.ID) (*tariffdomain.Assignment, error) {
	if subscriberID == 0 {
		return nil, tariffdomain.ErrInvalidSubscriber
	}
	var assignment tariffdomain.Assignment
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM tariff_assignments WHERE subscriber_id = ?`, subscriberID,
	).Scan(&assignment).Error
	if err != nil {
		return nil, err
	}
	if assignment.ID == 0 {
		return nil, nil
	}
	return &assignment, nil
}

func (s *Service) ListByGroup(ctx context.Context, groupID snowflake.ID) ([]tariffdomain.Tariff, error) {
	var tariffs []tariffdomain.Tariff
	err := s.db.WithContext(ctx).Raw(
		`SELECT t.* FROM tariffs t
		 JOIN group_tariffs gt ON gt.tariff_id = t.id
		 WHERE gt.group_id = ?
		 ORDER BY t.title`, groupID,
	).Scan(&tariffs).Error
	if err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (s *Service) SetGroupTariffs(ctx context.Context, groupID snowflake.ID, tariffIDs []snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM group_tariffs WHERE group_id = ?`, groupID,
		).Error; err != nil {
			return err
		}
		for _, id := range tariffIDs {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO group_tariffs (group_id, tariff_id) VALUES (?, ?)`,
				groupID, id,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
