package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/abonix/internal/gateway/domain"
	"github.com/smallbiznis/abonix/internal/gateway/nas"
	"github.com/smallbiznis/abonix/internal/metrics"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Registry *nas.Registry
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	registry *nas.Registry
	metrics  *metrics.Metrics

	mu       sync.Mutex
	lastSync map[snowflake.ID]string
}

func NewService(p Params) gatewaydomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("gateway.service"),
		registry: p.Registry,
		metrics:  p.Metrics,
		lastSync: map[snowflake.ID]string{},
	}
}

func (s *Service) SyncSubscriber(ctx context.Context, subscriberID snowflake.ID) error {
	sub, err := s.loadSubscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	if sub.NASID == nil {
		return gatewaydomain.ErrGatewayRequired
	}

	mngr, gw, err := s.manager(ctx, *sub.NASID)
	if err != nil {
		return err
	}

	state := gatewaydomain.SubscriberState{
		SubscriberID: sub.ID,
		Username:     sub.Username,
		Enabled:      sub.IsActive && sub.CurrentTariffID != nil,
	}
	if sub.IPAddress != nil {
		state.IPAddress = *sub.IPAddress
	}
	if sub.CurrentTariffID != nil {
		var speeds struct {
			SpeedIn  int
			SpeedOut int
		}
		if err := s.db.WithContext(ctx).Raw(
			`SELECT speed_in, speed_out FROM tariffs WHERE id = ?`, *sub.CurrentTariffID,
		).Scan(&speeds).Error; err != nil {
			return err
		}
		state.SpeedIn = speeds.SpeedIn
		state.SpeedOut = speeds.SpeedOut
	}

	// Unchanged state is not re-pushed; the agent treats repeats as no-ops
	// anyway, this just saves the round trip.
	fingerprint := fmt.Sprintf("%d|%s|%s|%t|%d|%d",
		state.SubscriberID, state.Username, state.IPAddress,
		state.Enabled, state.SpeedIn, state.SpeedOut)
	s.mu.Lock()
	unchanged := s.lastSync[sub.ID] == fingerprint
	s.mu.Unlock()
	if unchanged {
		// The device already holds this state. A failed push in between may
		// have left the dirty flag set; the gateway is in line again, so
		// reconciliation is done for this subscriber.
		if sub.SyncDirty {
			s.markDirty(ctx, sub.ID, false)
		}
		return nil
	}

	if err := mngr.SyncSubscriber(ctx, state); err != nil {
		s.recordSync("error")
		s.markDirty(ctx, sub.ID, true)
		s.log.Warn("gateway sync failed",
			zap.String("username", sub.Username),
			zap.String("nas", gw.Title),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.lastSync[sub.ID] = fingerprint
	s.mu.Unlock()
	s.recordSync("ok")
	s.markDirty(ctx, sub.ID, false)
	return nil
}

func (s *Service) FreeLease(ctx context.Context, subscriberID snowflake.ID) error {
	sub, err := s.loadSubscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	if sub.NASID == nil {
		return gatewaydomain.ErrGatewayRequired
	}
	if sub.IPAddress == nil || *sub.IPAddress == "" {
		return gatewaydomain.ErrNoLease
	}

	mngr, _, err := s.manager(ctx, *sub.NASID)
	if err != nil {
		return err
	}
	if err := mngr.FreeLease(ctx, *sub.IPAddress); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET ip_address = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), sub.ID,
	).Error
}

func (s *Service) Ping(ctx context.Context, subscriberID snowflake.ID, ip string) error {
	sub, err := s.loadSubscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	if sub.NASID == nil {
		return gatewaydomain.ErrGatewayRequired
	}
	mngr, _, err := s.manager(ctx, *sub.NASID)
	if err != nil {
		return err
	}
	return mngr.Ping(ctx, ip)
}

func (s *Service) loadSubscriber(ctx context.Context, id snowflake.ID) (*subscriberdomain.Subscriber, error) {
	if id == 0 {
		return nil, subscriberdomain.ErrInvalidID
	}
	var sub subscriberdomain.Subscriber
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers WHERE id = ?`, id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, subscriberdomain.ErrNotFound
	}
	return &sub, nil
}

func (s *Service) manager(ctx context.Context, nasID snowflake.ID) (gatewaydomain.Manager, *gatewaydomain.NAS, error) {
	var gw gatewaydomain.NAS
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM nas WHERE id = ?`, nasID,
	).Scan(&gw).Error
	if err != nil {
		return nil, nil, err
	}
	if gw.ID == 0 {
		return nil, nil, subscriberdomain.ErrNASNotFound
	}
	mngr, err := s.registry.NewManager(gw)
	if err != nil {
		return nil, nil, err
	}
	return mngr, &gw, nil
}

func (s *Service) markDirty(ctx context.Context, id snowflake.ID, dirty bool) {
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET sync_dirty = ? WHERE id = ?`, dirty, id,
	).Error; err != nil {
		s.log.Warn("failed to update sync flag", zap.Error(err))
	}
}

func (s *Service) recordSync(outcome string) {
	if s.metrics != nil {
		s.metrics.GatewaySync.WithLabelValues(outcome).Inc()
	}
}
