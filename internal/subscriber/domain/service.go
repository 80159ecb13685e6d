package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/abonix/pkg/db/pagination"
)

var (
	ErrInvalidUsername = errors.New("invalid_username")
	ErrInvalidGroup    = errors.New("invalid_group")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("subscriber_not_found")
	ErrUsernameTaken   = errors.New("username_taken")
	ErrDeviceNotFound  = errors.New("device_not_found")
	ErrPortNotFound    = errors.New("port_not_found")
	ErrNASNotFound     = errors.New("nas_not_found")
	ErrGroupEmpty      = errors.New("group_has_no_subscribers")
)

// PortTakenError reports a device port already pinned to another account.
type PortTakenError struct {
	Username string
}

func (e *PortTakenError) Error() string {
	return fmt.Sprintf("port already pinned to %s", e.Username)
}

type CreateSubscriberRequest struct {
	Username  string
	FIO       string
	Telephone string
	GroupID   snowflake.ID
	StreetID  *snowflake.ID
	House     string
}

type ListSubscriberRequest struct {
	pagination.Pagination
	GroupID  snowflake.ID
	StreetID *snowflake.ID
}

type ListSubscriberResponse struct {
	pagination.PageInfo
	Subscribers []Subscriber `json:"subscribers"`
}

type SetDevPortRequest struct {
	Username    string
	PortID      *snowflake.ID
	IsDynamicIP bool
}

type Service interface {
	Create(context.Context, CreateSubscriberRequest) (Subscriber, error)
	GetByUsername(ctx context.Context, username string) (Subscriber, error)
	GetByID(ctx context.Context, id snowflake.ID) (Subscriber, error)
	List(context.Context, ListSubscriberRequest) (ListSubscriberResponse, error)
	Search(ctx context.Context, term string) ([]Subscriber, error)

	AttachDevice(ctx context.Context, username string, deviceID snowflake.ID) error
	ClearDevice(ctx context.Context, username string) error
	SetDevPort(context.Context, SetDevPortRequest) error
	SetAutoconnect(ctx context.Context, username string, enabled bool) error
	SetMarkers(ctx context.Context, username string, markers int64) error
	AttachNASToGroup(ctx context.Context, groupID, nasID snowflake.ID) (int64, error)
}
