package domain

import "time"

// Member represents a connection's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"name"`
	JoinedAt     time.Time    `json:"joinedAt"`
}

// NewMember avoids raw literals in callers and keeps construction obvious.
func NewMember(cid ConnectionID, uid UserID, displayName string, joinedAt time.Time) *Member {
	return &Member{
		ConnectionID: cid,
		UserID:       uid,
		DisplayName:  SanitizeDisplayName(displayName, uid),
		JoinedAt:     joinedAt,
	}
}
