package models

import "time"

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// Room is a chat room. MemberCount is a denormalized counter kept equal to
// the number of RoomMember rows by every write path.
type Room struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	PhotoURL    string       `json:"photoURL,omitempty"`
	MemberCount int          `json:"memberCount"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// RoomMember is the room-side view of a membership.
type RoomMember struct {
	RoomID               string     `json:"roomId"`
	UserID               string     `json:"userId"`
	Role                 MemberRole `json:"role"`
	JoinedAt             time.Time  `json:"joinedAt"`
	LastRead             *time.Time `json:"lastRead,omitempty"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
}

// RoomMembership is the user-side mirror of RoomMember.
type RoomMembership struct {
	UserID               string     `json:"userId"`
	RoomID               string     `json:"roomId"`
	JoinedAt             time.Time  `json:"joinedAt"`
	LastRead             *time.Time `json:"lastRead,omitempty"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
}

type TypingIndicator struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	IsTyping  bool      `json:"isTyping"`
	UpdatedAt time.Time `json:"updatedAt"`
}
