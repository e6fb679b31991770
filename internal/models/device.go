package models

import "time"

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform maps client input to a Platform, defaulting to unknown.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformIOS, PlatformAndroid:
		return Platform(s)
	default:
		return PlatformUnknown
	}
}

// Device is a push-capable installation of the app for one user.
type Device struct {
	UserID     string    `json:"userId"`
	DeviceID   string    `json:"deviceId"`
	PushToken  string    `json:"-"`
	Platform   Platform  `json:"platform"`
	LastActive time.Time `json:"lastActive"`
	AppVersion string    `json:"appVersion,omitempty"`
}

// DeviceToken is one push target resolved during dispatch.
type DeviceToken struct {
	Token    string
	UserID   string
	DeviceID string
	Platform Platform
}

// DeviceRef addresses a device row.
type DeviceRef struct {
	UserID   string
	DeviceID string
}
