package app

import "github.com/dkeye/duo/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropMessage
	KickMember
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, cid domain.ConnectionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.ConnectionID) BackpressureAction {
	return KickMember
}
