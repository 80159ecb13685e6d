package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/abonix/internal/subscriber/domain"
	"github.com/smallbiznis/abonix/pkg/db"
	"github.com/smallbiznis/abonix/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscriber.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriberRequest) (domain.Subscriber, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return domain.Subscriber{}, domain.ErrInvalidUsername
	}
	if req.GroupID == 0 {
		return domain.Subscriber{}, domain.ErrInvalidGroup
	}

	now := time.Now().UTC()
	groupID := req.GroupID
	sub := domain.Subscriber{
		ID:        s.genID.Generate(),
		Username:  req.Username,
		FIO:       strings.TrimSpace(req.FIO),
		Telephone: strings.TrimSpace(req.Telephone),
		GroupID:   &groupID,
		StreetID:  req.StreetID,
		House:     strings.TrimSpace(req.House),
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Subscriber{}, domain.ErrUsernameTaken
		}
		return domain.Subscriber{}, err
	}
	return sub, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (domain.Subscriber, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Subscriber{}, domain.ErrInvalidUsername
	}
	sub, err := s.repo.FindByUsername(ctx, s.db, username)
	if err != nil {
		return domain.Subscriber{}, err
	}
	if sub == nil {
		return domain.Subscriber{}, domain.ErrNotFound
	}
	return *sub, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Subscriber, error) {
	if id == 0 {
		return domain.Subscriber{}, domain.ErrInvalidID
	}
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Subscriber{}, err
	}
	if sub == nil {
		return domain.Subscriber{}, domain.ErrNotFound
	}
	return *sub, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriberRequest) (domain.ListSubscriberResponse, error) {
	if req.GroupID == 0 {
		return domain.ListSubscriberResponse{}, domain.ErrInvalidGroup
	}

	limit := req.Limit()
	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListSubscriberResponse{}, domain.ErrInvalidID
		}
		parsed, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return domain.ListSubscriberResponse{}, domain.ErrInvalidID
		}
		afterID = snowflake.ID(parsed)
	}

	subs, err := s.repo.List(ctx, s.db, req.GroupID, req.StreetID, limit+1, afterID)
	if err != nil {
		return domain.ListSubscriberResponse{}, err
	}

	pageInfo, subs := pagination.BuildCursorPageInfo(subs, limit, func(sub *domain.Subscriber) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: sub.ID.String()})
		return token
	})

	out := make([]domain.Subscriber, 0, len(subs))
	for _, sub := range subs {
		out = append(out, *sub)
	}
	return domain.ListSubscriberResponse{
		PageInfo:    *pageInfo,
		Subscribers: out,
	}, nil
}

func (s *Service) Search(ctx context.Context, term string) ([]domain.Subscriber, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	subs, err := s.repo.Search(ctx, s.db, term, 20)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Subscriber, 0, len(subs))
	for _, sub := range subs {
		out = append(out, *sub)
	}
	return out, nil
}

func (s *Service) AttachDevice(ctx context.Context, username string, deviceID snowflake.ID) error {
	sub, err := s.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM devices WHERE id = ?`, deviceID,
	).Scan(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrDeviceNotFound
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET device_id = ?, updated_at = ? WHERE id = ?`,
		deviceID, time.Now().UTC(), sub.ID,
	).Error
}

func (s *Service) ClearDevice(ctx context.Context, username string) error {
	sub, err := s.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE subscribers
		 SET device_id = NULL, dev_port_id = NULL, is_dynamic_ip = FALSE, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), sub.ID,
	).Error
}

func (s *Service) SetDevPort(ctx context.Context, req domain.SetDevPortRequest) error {
	sub, err := s.GetByUsername(ctx, req.Username)
	if err != nil {
		return err
	}

	if req.PortID != nil {
		var port domain.DevPort
		if err := s.db.WithContext(ctx).Raw(
			`SELECT * FROM dev_ports WHERE id = ?`, *req.PortID,
		).Scan(&port).Error; err != nil {
			return err
		}
		if port.ID == 0 {
			return domain.ErrPortNotFound
		}

		// One account per device port.
		if sub.DeviceID != nil {
			other, err := s.repo.FindByDevicePort(ctx, s.db, *sub.DeviceID, *req.PortID)
			if err != nil {
				return err
			}
			if other != nil && other.ID != sub.ID {
				return &domain.PortTakenError{Username: other.Username}
			}
		}
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET dev_port_id = ?, is_dynamic_ip = ?, updated_at = ? WHERE id = ?`,
		req.PortID, req.IsDynamicIP, time.Now().UTC(), sub.ID,
	).Error
}

func (s *Service) SetAutoconnect(ctx context.Context, username string, enabled bool) error {
	sub, err := s.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET autoconnect_service = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), sub.ID,
	).Error
}

func (s *Service) SetMarkers(ctx context.Context, username string, markers int64) error {
	sub, err := s.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET markers = ?, updated_at = ? WHERE id = ?`,
		markers, time.Now().UTC(), sub.ID,
	).Error
}

func (s *Service) AttachNASToGroup(ctx context.Context, groupID, nasID snowflake.ID) (int64, error) {
	if groupID == 0 {
		return 0, domain.ErrInvalidGroup
	}

	var count int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM nas WHERE id = ?`, nasID,
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.ErrNASNotFound
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET nas_id = ?, updated_at = ? WHERE group_id = ?`,
		nasID, time.Now().UTC(), groupID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, domain.ErrGroupEmpty
	}
	return result.RowsAffected, nil
}
