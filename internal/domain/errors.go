package domain

import "errors"

// Every error here is reported to the originating connection and leaves
// state unchanged.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyMember = errors.New("already a member of this room")
	ErrNotAMember    = errors.New("not a member of this room")
	ErrInvalidFormat = errors.New("invalid format")
	ErrNotInRoom     = errors.New("not in room")
	ErrRateLimited   = errors.New("rate limited")
)
