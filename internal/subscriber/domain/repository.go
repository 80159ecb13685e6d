package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscriber) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscriber, error)
	FindByUsername(ctx context.Context, db *gorm.DB, username string) (*Subscriber, error)
	FindByIP(ctx context.Context, db *gorm.DB, ip string) (*Subscriber, error)
	FindByDevicePort(ctx context.Context, db *gorm.DB, deviceID, portID snowflake.ID) (*Subscriber, error)
	// FindDynamicByDevice resolves a dynamic-ip subscriber on the device for
	// the given address: the current holder of the address first, then an
	// account without a lease yet.
	FindDynamicByDevice(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, ip string) (*Subscriber, error)
	List(ctx context.Context, db *gorm.DB, groupID snowflake.ID, streetID *snowflake.ID, limit int, afterID snowflake.ID) ([]*Subscriber, error)
	Search(ctx context.Context, db *gorm.DB, term string, limit int) ([]*Subscriber, error)
}
