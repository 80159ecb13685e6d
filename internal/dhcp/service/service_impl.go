package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	dhcpdomain "github.com/smallbiznis/abonix/internal/dhcp/domain"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo subscriberdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo subscriberdomain.Repository
}

func NewService(p Params) dhcpdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("dhcp.service"),
		repo: p.Repo,
	}
}

func (s *Service) HandleEvent(ctx context.Context, event dhcpdomain.Event) (string, error) {
	if strings.TrimSpace(event.Cmd) == "" {
		return `"cmd" parameter is missing`, nil
	}
	if strings.TrimSpace(event.ClientIP) == "" {
		return `"client_ip" parameter is missing`, nil
	}

	switch event.Cmd {
	case dhcpdomain.CmdCommit:
		return s.commit(ctx, event)
	case dhcpdomain.CmdExpiry, dhcpdomain.CmdRelease:
		return s.free(ctx, event.ClientIP)
	default:
		return fmt.Sprintf(`"cmd" parameter is invalid: %s`, event.Cmd), nil
	}
}

func (s *Service) commit(ctx context.Context, event dhcpdomain.Event) (string, error) {
	var device subscriberdomain.Device
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM devices WHERE mac_addr = ?`, strings.ToLower(event.SwitchMAC),
	).Scan(&device).Error; err != nil {
		return "", err
	}
	if device.ID == 0 {
		return fmt.Sprintf("device with mac %s not found", event.SwitchMAC), nil
	}

	var port subscriberdomain.DevPort
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM dev_ports WHERE device_id = ? AND num = ?`, device.ID, event.SwitchPort,
	).Scan(&port).Error; err != nil {
		return "", err
	}
	if port.ID == 0 {
		return fmt.Sprintf("port %d not found on device %s", event.SwitchPort, event.SwitchMAC), nil
	}

	sub, err := s.repo.FindByDevicePort(ctx, s.db, device.ID, port.ID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		// Not pinned to the port; a dynamic-ip account on the device may
		// still claim the lease.
		sub, err = s.repo.FindDynamicByDevice(ctx, s.db, device.ID, event.ClientIP)
		if err != nil {
			return "", err
		}
	}
	if sub == nil {
		return fmt.Sprintf("no subscriber on %s port %d", event.SwitchMAC, event.SwitchPort), nil
	}

	if sub.IPAddress != nil && *sub.IPAddress == event.ClientIP {
		// Lease renewal, nothing to change.
		return "", nil
	}

	holder, err := s.repo.FindByIP(ctx, s.db, event.ClientIP)
	if err != nil {
		return "", err
	}
	if holder != nil && holder.ID != sub.ID {
		return "", &dhcpdomain.LeaseConflictError{IP: event.ClientIP, Username: holder.Username}
	}

	if err := s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET ip_address = ?, updated_at = ? WHERE id = ?`,
		event.ClientIP, time.Now().UTC(), sub.ID,
	).Error; err != nil {
		return "", err
	}

	s.log.Info("lease committed",
		zap.String("username", sub.Username),
		zap.String("ip", event.ClientIP),
		zap.String("switch_mac", event.SwitchMAC),
		zap.Int("switch_port", event.SwitchPort))
	return "", nil
}

func (s *Service) free(ctx context.Context, ip string) (string, error) {
	sub, err := s.repo.FindByIP(ctx, s.db, ip)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return fmt.Sprintf("lease %s is not known", ip), nil
	}
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE subscribers SET ip_address = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), sub.ID,
	).Error; err != nil {
		return "", err
	}
	s.log.Info("lease freed", zap.String("username", sub.Username), zap.String("ip", ip))
	return "", nil
}
