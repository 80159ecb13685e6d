package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Group is a geographic/administrative grouping of subscribers.
type Group struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Title     string       `gorm:"type:text;not null" json:"title"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Group) TableName() string { return "groups" }

// Street belongs to a group and scopes subscriber addresses.
type Street struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	GroupID   snowflake.ID `gorm:"not null;index" json:"group_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Street) TableName() string { return "streets" }

// Device is an access switch subscribers are attached to.
type Device struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	GroupID   snowflake.ID `gorm:"not null;index" json:"group_id"`
	MacAddr   string       `gorm:"column:mac_addr;type:text;not null" json:"mac_addr"`
	Comment   string       `gorm:"type:text;not null;default:''" json:"comment"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Device) TableName() string { return "devices" }

// DevPort is a single port on a device; at most one subscriber may be pinned to it.
type DevPort struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	DeviceID snowflake.ID `gorm:"not null;index" json:"device_id"`
	Num      int          `gorm:"not null" json:"num"`
	Descr    string       `gorm:"type:text;not null;default:''" json:"descr"`
}

func (DevPort) TableName() string { return "dev_ports" }

// Subscriber is a billed customer account. Balance is a materialized cache of
// the ledger and must only be mutated through ledger operations.
type Subscriber struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	Username           string          `gorm:"type:text;not null;uniqueIndex" json:"username"`
	FIO                string          `gorm:"column:fio;type:text;not null;default:''" json:"fio"`
	Telephone          string          `gorm:"type:text;not null;default:''" json:"telephone"`
	GroupID            *snowflake.ID   `gorm:"index" json:"group_id,omitempty"`
	StreetID           *snowflake.ID   `json:"street_id,omitempty"`
	House              string          `gorm:"type:text;not null;default:''" json:"house"`
	Balance            decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"balance"`
	IPAddress          *string         `gorm:"column:ip_address" json:"ip_address,omitempty"`
	DeviceID           *snowflake.ID   `json:"device_id,omitempty"`
	DevPortID          *snowflake.ID   `json:"dev_port_id,omitempty"`
	IsDynamicIP        bool            `gorm:"column:is_dynamic_ip;not null;default:false" json:"is_dynamic_ip"`
	NASID              *snowflake.ID   `gorm:"column:nas_id" json:"nas_id,omitempty"`
	CurrentTariffID    *snowflake.ID   `json:"current_tariff_id,omitempty"`
	Markers            int64           `gorm:"not null;default:0" json:"markers"`
	AutoconnectService bool            `gorm:"not null;default:false" json:"autoconnect_service"`
	IsActive           bool            `gorm:"not null;default:false" json:"is_active"`
	// SyncDirty marks accounts whose committed billing state has not yet
	// been confirmed on the gateway.
	SyncDirty bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Subscriber) TableName() string { return "subscribers" }
