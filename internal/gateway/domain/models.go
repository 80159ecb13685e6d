package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// NAS is an external access-control gateway enforcing subscriber connectivity.
type NAS struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Title     string       `gorm:"type:text;not null" json:"title"`
	IPAddress string       `gorm:"column:ip_address;type:text;not null" json:"ip_address"`
	NASType   string       `gorm:"column:nas_type;type:text;not null" json:"nas_type"`
	AuthLogin string       `gorm:"type:text;not null;default:''" json:"auth_login"`
	AuthPassw string       `gorm:"type:text;not null;default:''" json:"-"`
	IsDefault bool         `gorm:"not null;default:false" json:"is_default"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (NAS) TableName() string { return "nas" }

// SubscriberState is the full desired access state pushed to a gateway.
// Pushing the same state twice must be a no-op on the device.
type SubscriberState struct {
	SubscriberID snowflake.ID `json:"subscriber_id"`
	Username     string       `json:"username"`
	IPAddress    string       `json:"ip_address,omitempty"`
	Enabled      bool         `json:"enabled"`
	SpeedIn      int          `json:"speed_in"`
	SpeedOut     int          `json:"speed_out"`
}

// NetworkError is a transient, retryable gateway failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("nas network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FailedResult is a device-side rejection; retrying without operator
// intervention will not help.
type FailedResult struct {
	Op     string
	Reason string
}

func (e *FailedResult) Error() string {
	return fmt.Sprintf("nas failed result: %s: %s", e.Op, e.Reason)
}

var (
	// ErrGatewayRequired means the subscriber has no NAS configured.
	ErrGatewayRequired = errors.New("gateway required")
	ErrNoLease         = errors.New("subscriber_has_no_ip")
	ErrUnknownNASType  = errors.New("unknown_nas_type")
)

// Manager talks to a single gateway device.
type Manager interface {
	Ping(ctx context.Context, ip string) error
	SyncSubscriber(ctx context.Context, state SubscriberState) error
	FreeLease(ctx context.Context, ip string) error
}

// ManagerFactory builds a Manager for one gateway record.
type ManagerFactory interface {
	Type() string
	New(nas NAS) Manager
}

type Service interface {
	// SyncSubscriber pushes the subscriber's committed billing state to its
	// gateway. Returns nil, *NetworkError or *FailedResult.
	SyncSubscriber(ctx context.Context, subscriberID snowflake.ID) error
	// FreeLease releases the subscriber's IP lease at the gateway and clears
	// the stored address.
	FreeLease(ctx context.Context, subscriberID snowflake.ID) error
	Ping(ctx context.Context, subscriberID snowflake.ID, ip string) error
}
