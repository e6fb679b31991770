package models

import "time"

// RateLimitRecord holds the admitted request times (unix ms) for one
// (user, action) pair inside the current window.
type RateLimitRecord struct {
	Key         string    `json:"key"`
	UserID      string    `json:"userId"`
	Action      string    `json:"action"`
	Timestamps  []int64   `json:"timestamps"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RateLimitKey builds the record key for a user and action.
func RateLimitKey(userID, action string) string {
	return userID + "_" + action
}
