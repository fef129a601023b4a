// File: api/events.go
// Author: momentics <momentics@gmail.com>
//
// Out-of-band user events delivered through session pipelines.

package api

// IdleState is the user event fired when a session sees no activity.
type IdleState int

const (
	ReadIdle IdleState = iota + 1
	WriteIdle
)

func (s IdleState) String() string {
	switch s {
	case ReadIdle:
		return "READ_IDLE"
	case WriteIdle:
		return "WRITE_IDLE"
	}
	return "UNKNOWN_IDLE"
}

// Role tells which side opened a session.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}
