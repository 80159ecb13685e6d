package domain

import (
	"context"
	"fmt"
)

const (
	CmdCommit  = "commit"
	CmdExpiry  = "expiry"
	CmdRelease = "release"
)

// Event is one DHCP lease notification from an access switch relay.
type Event struct {
	Cmd        string `form:"cmd" json:"cmd"`
	ClientIP   string `form:"client_ip" json:"client_ip"`
	ClientMAC  string `form:"client_mac" json:"client_mac"`
	SwitchMAC  string `form:"switch_mac" json:"switch_mac"`
	SwitchPort int    `form:"switch_port" json:"switch_port"`
}

// LeaseConflictError is an integrity violation: the address is already
// committed to a different account.
type LeaseConflictError struct {
	IP       string
	Username string
}

func (e *LeaseConflictError) Error() string {
	return fmt.Sprintf("ip %s already leased to %s", e.IP, e.Username)
}

// Service applies lease events to subscriber records.
//
// HandleEvent returns ("", nil) on success, a non-empty message for handled
// problems the relay should see as plain text, or an error for integrity
// violations.
type Service interface {
	HandleEvent(context.Context, Event) (string, error)
}
