package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/abonix/internal/subscriber/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscriber) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscribers (
			id, username, fio, telephone, group_id, street_id, house,
			balance, markers, autoconnect_service, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.Username,
		sub.FIO,
		sub.Telephone,
		sub.GroupID,
		sub.StreetID,
		sub.House,
		sub.Balance,
		sub.Markers,
		sub.AutoconnectService,
		sub.IsActive,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers WHERE id = ?`, id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers WHERE username = ?`, username,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByIP(ctx context.Context, db *gorm.DB, ip string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers WHERE ip_address = ?`, ip,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByDevicePort(ctx context.Context, db *gorm.DB, deviceID, portID snowflake.ID) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers WHERE device_id = ? AND dev_port_id = ?`,
		deviceID, portID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindDynamicByDevice(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, ip string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscribers
		 WHERE device_id = ? AND is_dynamic_ip = TRUE
		 ORDER BY COALESCE(ip_address = ?, FALSE) DESC,
		          (ip_address IS NULL) DESC,
		          id
		 LIMIT 1`,
		deviceID, ip,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, groupID snowflake.ID, streetID *snowflake.ID, limit int, afterID snowflake.ID) ([]*domain.Subscriber, error) {
	var subs []*domain.Subscriber
	stmt := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("group_id = ?", groupID)
	if streetID != nil {
		stmt = stmt.Where("street_id = ?", *streetID)
	}
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	err := stmt.
		Order("id asc").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, term string, limit int) ([]*domain.Subscriber, error) {
	var subs []*domain.Subscriber
	pattern := "%" + term + "%"
	err := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("username LIKE ? OR fio LIKE ?", pattern, pattern).
		Order("username asc").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
