package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Tariff is a service plan with defined bandwidth limits.
type Tariff struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Title     string          `gorm:"type:text;not null" json:"title"`
	Price     decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"price"`
	SpeedIn   int             `gorm:"not null;default:0" json:"speed_in"`
	SpeedOut  int             `gorm:"not null;default:0" json:"speed_out"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Tariff) TableName() string { return "tariffs" }

// GroupTariff marks a tariff as offered to a group.
type GroupTariff struct {
	GroupID  snowflake.ID `gorm:"primaryKey" json:"group_id"`
	TariffID snowflake.ID `gorm:"primaryKey" json:"tariff_id"`
}

func (GroupTariff) TableName() string { return "group_tariffs" }

// Assignment binds a subscriber to a tariff. A subscriber has at most one
// active assignment; picking a new tariff replaces it.
type Assignment struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriberID snowflake.ID `gorm:"not null;uniqueIndex" json:"subscriber_id"`
	TariffID     snowflake.ID `gorm:"not null" json:"tariff_id"`
	TimeStart    time.Time    `gorm:"not null" json:"time_start"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Assignment) TableName() string { return "tariff_assignments" }

var (
	ErrTariffNotFound     = errors.New("tariff_not_found")
	ErrTariffNotOffered   = errors.New("tariff_not_offered_to_group")
	ErrAssignmentNotFound = errors.New("assignment_not_found")
	ErrInvalidSubscriber  = errors.New("invalid_subscriber")
	ErrSubscriberNoGroup  = errors.New("subscriber_has_no_group")
)

type PickTariffRequest struct {
	SubscriberID snowflake.ID
	TariffID     snowflake.ID
	ActorID      *snowflake.ID
	Deadline     *time.Time
	Comment      string
}

// PickTariffResult reports the committed assignment. SyncWarning is set when
// the post-commit gateway push failed; the assignment itself stands.
type PickTariffResult struct {
	Assignment  Assignment `json:"assignment"`
	SyncWarning string     `json:"sync_warning,omitempty"`
}

type Service interface {
	PickTariff(context.Context, PickTariffRequest) (PickTariffResult, error)
	// Unsubscribe removes an assignment. It does not push a gateway resync;
	// the change reaches the gateway on the next reconciliation pass.
	Unsubscribe(ctx context.Context, assignmentID snowflake.ID) error
	ActiveAssignment(ctx context.Context, subscriberID snowflake.ID) (*Assignment, error)
	ListByGroup(ctx context.Context, groupID snowflake.ID) ([]Tariff, error)
	SetGroupTariffs(ctx context.Context, groupID snowflake.ID, tariffIDs []snowflake.ID) error
}
