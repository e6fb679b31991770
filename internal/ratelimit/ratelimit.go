package ratelimit

import (
	"context"
	stderrors "errors"
	"time"

	"raine/internal/database"
	"raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Rate-limited actions.
const (
	ActionMessageSend  = "message_send"
	ActionRoomCreate   = "room_create"
	ActionReportUser   = "report_user"
	ActionTypingStatus = "typing_status"
)

// Policy bounds how many requests fit in a trailing window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultPolicies are the per-action limits applied to every user.
var DefaultPolicies = map[string]Policy{
	ActionMessageSend:  {MaxRequests: 30, Window: 60 * time.Second},
	ActionRoomCreate:   {MaxRequests: 10, Window: time.Hour},
	ActionReportUser:   {MaxRequests: 5, Window: 24 * time.Hour},
	ActionTypingStatus: {MaxRequests: 10, Window: 10 * time.Second},
}

// ErrUnknownAction is the cause of the INVALID_INPUT error returned for an
// action without a policy.
var ErrUnknownAction = stderrors.New("unknown rate limit action")

// Result describes the outcome of one admission check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Store persists per-(user, action) timestamps transactionally.
type Store interface {
	UpdateRateLimit(ctx context.Context, userID, action string, now time.Time, fn database.RateLimitUpdate) error
}

// Limiter is an exact sliding-window limiter. Each check is one
// serializable read-modify-write on the store, so concurrent callers never
// admit more than MaxRequests inside any window.
type Limiter struct {
	store    Store
	policies map[string]Policy
	logger   *logrus.Logger
	now      func() time.Time
}

// NewLimiter creates a limiter with the default policies
func NewLimiter(store Store, logger *logrus.Logger) *Limiter {
	return &Limiter{
		store:    store,
		policies: DefaultPolicies,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the policy for action
func (l *Limiter) Policy(action string) (Policy, bool) {
	p, ok := l.policies[action]
	return p, ok
}

// CheckAndConsume admits or rejects one request for (userID, action).
// Rejections record nothing.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID, action string) (*Result, error) {
	policy, ok := l.policies[action]
	if !ok {
		return nil, errors.Wrap(ErrUnknownAction, errors.ErrCodeInvalidInput, "unknown rate limit action").
			WithContext("action", action).
			WithUserMessage("Unknown action")
	}

	now := l.now()
	var result Result
	err := l.store.UpdateRateLimit(ctx, userID, action, now, func(timestamps []int64) ([]int64, bool) {
		next, res := Evaluate(timestamps, now, policy)
		result = res
		return next, res.Allowed
	})
	if err != nil {
		return nil, errors.NewDatabaseError("rate limit check", err)
	}

	if !result.Allowed {
		metrics.IncrementCounter(metrics.RateLimitRejected, map[string]string{
			"scope":  "user",
			"action": action,
		}, "Requests rejected by rate limiting")
		l.logger.WithFields(logrus.Fields{
			"user_id":  privacy.MaskUserID(userID),
			"action":   action,
			"reset_at": result.ResetAt.UTC().Format(time.RFC3339),
		}).Warn("Rate limit exceeded")
	}

	return &result, nil
}

// Limit runs fn only when the request is admitted. A rejection returns a
// RATE_LIMITED error carrying the reset instant.
func (l *Limiter) Limit(ctx context.Context, userID, action string, fn func() error) error {
	result, err := l.CheckAndConsume(ctx, userID, action)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return errors.NewRateLimitedError(action, result.ResetAt)
	}
	return fn()
}

// Evaluate applies the sliding-window rule to stored timestamps (unix ms).
// Entries at or before now-window are dropped. When the survivors already
// fill the policy the request is rejected and resetAt is when the oldest
// survivor leaves the window. Otherwise now is appended.
func Evaluate(timestamps []int64, now time.Time, policy Policy) ([]int64, Result) {
	nowMs := now.UnixMilli()
	windowMs := policy.Window.Milliseconds()
	windowStart := nowMs - windowMs

	survivors := make([]int64, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts > windowStart {
			survivors = append(survivors, ts)
		}
	}

	if len(survivors) >= policy.MaxRequests {
		oldest := survivors[0]
		for _, ts := range survivors[1:] {
			if ts < oldest {
				oldest = ts
			}
		}
		return nil, Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   time.UnixMilli(oldest + windowMs).UTC(),
		}
	}

	survivors = append(survivors, nowMs)
	return survivors, Result{
		Allowed:   true,
		Remaining: policy.MaxRequests - len(survivors),
		ResetAt:   time.UnixMilli(nowMs + windowMs).UTC(),
	}
}
