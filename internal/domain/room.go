package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MinRoomIDLen = 4
	MaxRoomIDLen = 20

	// MaxMembers is the capacity of every room.
	MaxMembers = 2
)

type RoomID string

var validate = validator.New()

// NormalizeRoomID trims and upper-cases a raw room id so that "abc1" and
// "ABC1" resolve to the same room.
func NormalizeRoomID(raw string) RoomID {
	return RoomID(strings.ToUpper(strings.TrimSpace(raw)))
}

// ParseRoomID normalizes raw and checks it against the room id pattern.
func ParseRoomID(raw string) (RoomID, error) {
	id := NormalizeRoomID(raw)
	rule := fmt.Sprintf("required,alphanum,min=%d,max=%d", MinRoomIDLen, MaxRoomIDLen)
	if err := validate.Var(string(id), rule); err != nil {
		return "", fmt.Errorf("%w: room id must be %d-%d alphanumeric characters", ErrInvalidFormat, MinRoomIDLen, MaxRoomIDLen)
	}
	return id, nil
}
