package models

// RefreshTokenRequest registers or refreshes a device's push token.
type RefreshTokenRequest struct {
	Token      string `json:"token"`
	DeviceID   string `json:"deviceId,omitempty"`
	Platform   string `json:"platform,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// TypingRequest requires isTyping; a missing flag is rejected rather than
// read as false.
type TypingRequest struct {
	IsTyping *bool `json:"isTyping"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId,omitempty"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type ReportUserRequest struct {
	ReportedUserID string `json:"reportedUserId"`
	Reason         string `json:"reason"`
	Description    string `json:"description,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	RoomID         string `json:"roomId,omitempty"`
}

type RoomNotificationsRequest struct {
	Enabled *bool `json:"enabled"`
}
