package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"raine/internal/constants"
	apperrors "raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/models"
	"raine/internal/privacy"
	"raine/internal/tracing"
	"raine/pkg/push"

	"github.com/sirupsen/logrus"
)

// DispatchOutcome summarizes one fan-out.
type DispatchOutcome struct {
	Recipients int
	Attempted  int
	Succeeded  int
	Failed     int
	Pruned     int
}

// Dispatcher sends new-message pushes to the members of a room who want them.
type Dispatcher struct {
	store    DispatchStore
	sender   push.Sender
	cfg      models.NotificationsConfig
	location *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

func NewDispatcher(store DispatchStore, sender push.Sender, cfg models.NotificationsConfig, logger *logrus.Logger) (*Dispatcher, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = constants.DefaultNotificationTZ
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigError("notifications.timezone", err.Error())
	}
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = constants.DefaultMaxBodyLength
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = constants.DefaultNotificationTitle
	}
	if cfg.AndroidClick == "" {
		cfg.AndroidClick = constants.DefaultAndroidClickAction
	}
	return &Dispatcher{
		store:    store,
		sender:   sender,
		cfg:      cfg,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Dispatch notifies every eligible member of roomID except the sender.
// Tokens the push service reports as invalid or unregistered are deleted.
// A transport failure of the whole call is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, roomID string, msg models.MessageSummary) (*DispatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.dispatch", tracing.AttrRoomID.String(roomID))
	defer span.End()

	start := time.Now()
	outcome, err := d.dispatch(ctx, roomID, msg)
	metrics.RecordTimer(metrics.DispatchDuration, time.Since(start), nil, "Time spent dispatching one room notification")
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	tracing.AddSpanAttributes(ctx,
		tracing.AttrRecipients.Int(outcome.Recipients),
		tracing.AttrTokens.Int(outcome.Attempted),
		tracing.AttrSucceeded.Int(outcome.Succeeded),
		tracing.AttrFailed.Int(outcome.Failed),
		tracing.AttrPruned.Int(outcome.Pruned),
	)
	return outcome, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, roomID string, msg models.MessageSummary) (*DispatchOutcome, error) {
	outcome := &DispatchOutcome{}
	log := d.logger.WithFields(logrus.Fields{
		LogFieldRoomID: roomID,
		LogFieldUserID: privacy.MaskUserID(msg.SenderID),
	})

	room, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get room", err)
	}
	if room == nil {
		return nil, apperrors.NewNotFoundError("room", roomID)
	}

	members, err := d.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list room members", err)
	}

	local := d.now().In(d.location)
	var eligible []string
	for _, member := range members {
		if member.UserID == msg.SenderID {
			continue
		}
		if !member.NotificationsEnabled {
			log.WithField("recipient", privacy.MaskUserID(member.UserID)).Debug("Skipping recipient: room muted")
			continue
		}
		user, err := d.store.GetUser(ctx, member.UserID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("get user", err)
		}
		if user == nil {
			continue
		}
		if !user.NotificationPreferences.Enabled {
			log.WithField("recipient", privacy.MaskUserID(member.UserID)).Debug("Skipping recipient: notifications disabled")
			continue
		}
		if IsInQuietHours(user.NotificationPreferences, local) {
			log.WithField("recipient", privacy.MaskUserID(member.UserID)).Debug("Skipping recipient: quiet hours")
			continue
		}
		eligible = append(eligible, member.UserID)
	}
	outcome.Recipients = len(eligible)
	if len(eligible) == 0 {
		log.Debug("No eligible recipients")
		return outcome, nil
	}

	devices, err := d.store.ListDevices(ctx, eligible)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list devices", err)
	}
	tokens := make([]string, 0, len(devices))
	refs := make([]models.DeviceRef, 0, len(devices))
	for _, device := range devices {
		if strings.TrimSpace(device.PushToken) == "" {
			continue
		}
		tokens = append(tokens, device.PushToken)
		refs = append(refs, models.DeviceRef{UserID: device.UserID, DeviceID: device.DeviceID})
	}
	outcome.Attempted = len(tokens)
	if len(tokens) == 0 {
		log.Debug("No push tokens for recipients")
		return outcome, nil
	}

	resp, err := d.sender.SendEachForMulticast(ctx, d.buildMessage(room, msg, tokens))
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewPushError("", 0, err)
		}
		return nil, err
	}

	stale := collectResults(resp, refs, outcome, log)
	outcome.Pruned = pruneDevices(ctx, d.store, stale, log)
	recordDelivery(outcome)

	log.WithFields(logrus.Fields{
		LogFieldRecipients: outcome.Recipients,
		LogFieldTokens:     outcome.Attempted,
		LogFieldSucceeded:  outcome.Succeeded,
		LogFieldFailed:     outcome.Failed,
		LogFieldPruned:     outcome.Pruned,
	}).Info("Notification dispatch completed")
	return outcome, nil
}

func (d *Dispatcher) buildMessage(room *models.Room, msg models.MessageSummary, tokens []string) *push.MulticastMessage {
	title := room.Name
	if title == "" {
		title = d.cfg.DefaultTitle
	}
	badge := constants.DefaultAPNsBadge
	return &push.MulticastMessage{
		Tokens: tokens,
		Notification: &push.Notification{
			Title: title,
			Body:  TruncateMessage(msg.Text, d.cfg.MaxBodyLength),
		},
		Data: map[string]string{
			"roomId":   room.ID,
			"senderId": msg.SenderID,
			"type":     constants.NotificationTypeNewMessage,
		},
		Android: &push.AndroidConfig{
			Priority:    constants.DefaultAndroidPriority,
			Sound:       constants.DefaultNotificationSound,
			ClickAction: d.cfg.AndroidClick,
		},
		APNS: &push.APNSConfig{
			Badge: &badge,
			Sound: constants.DefaultNotificationSound,
		},
	}
}

// collectResults tallies per-token responses into outcome and returns the
// devices whose tokens are no longer valid. Responses align with refs.
func collectResults(resp *push.BatchResponse, refs []models.DeviceRef, outcome *DispatchOutcome, log *logrus.Entry) []models.DeviceRef {
	if resp == nil {
		return nil
	}
	var stale []models.DeviceRef
	for i, r := range resp.Responses {
		if i >= len(refs) {
			break
		}
		if r.Success {
			outcome.Succeeded++
			continue
		}
		outcome.Failed++
		if r.Error.IsTokenError() {
			stale = append(stale, refs[i])
			continue
		}
		if r.Error != nil {
			log.WithFields(logrus.Fields{
				LogFieldDeviceID:  refs[i].DeviceID,
				LogFieldErrorCode: r.Error.Code,
			}).Debug("Push delivery failed")
		}
	}
	return stale
}

// pruneDevices is best-effort: a failed delete is logged and reported as zero.
func pruneDevices(ctx context.Context, store TokenPruner, stale []models.DeviceRef, log *logrus.Entry) int {
	if len(stale) == 0 {
		return 0
	}
	n, err := store.DeleteDevices(ctx, stale, constants.MaxBatchWriteSize)
	if err != nil {
		log.WithError(err).WithField(LogFieldCount, len(stale)).Warn("Failed to prune invalid push tokens")
		return 0
	}
	log.WithField(LogFieldPruned, n).Warn("Pruned invalid push tokens")
	return n
}

func recordDelivery(outcome *DispatchOutcome) {
	metrics.AddToCounter(metrics.NotificationsDispatched, float64(outcome.Succeeded), nil, "Push notifications delivered")
	if outcome.Failed > 0 {
		metrics.AddToCounter(metrics.NotificationTokensFailed, float64(outcome.Failed), nil, "Push deliveries that failed per token")
	}
	if outcome.Pruned > 0 {
		metrics.AddToCounter(metrics.NotificationTokensPruned, float64(outcome.Pruned), nil, "Device rows deleted for invalid tokens")
	}
}

// IsInQuietHours reports whether now (already in the evaluation time zone)
// falls inside the user's quiet window. A window with start after end wraps
// midnight. Missing or malformed bounds never suppress.
func IsInQuietHours(prefs models.NotificationPreferences, now time.Time) bool {
	if prefs.QuietHoursStart == "" || prefs.QuietHoursEnd == "" {
		return false
	}
	start, ok := parseClock(prefs.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := parseClock(prefs.QuietHoursEnd)
	if !ok {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	if start <= end {
		return current >= start && current < end
	}
	return current >= start || current < end
}

// parseClock accepts "H:MM" and "HH:MM" and returns minutes since midnight.
func parseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || hh == "" || mm == "" {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// TruncateMessage shortens text to at most maxLen characters, the last three
// being "..." when anything was cut.
func TruncateMessage(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	suffix := constants.TruncationSuffix
	if maxLen <= len(suffix) {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-len(suffix)]) + suffix
}
