package main

import (
	"encoding/json"
	"net/http"
	"time"

	"raine/internal/auth"
	apperrors "raine/internal/errors"
	"raine/internal/httputil"
	"raine/internal/models"
	"raine/internal/security"
	"raine/internal/service"
	"raine/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type successResponse struct {
	Success bool `json:"success"`
}

type eventResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleUserCreated() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.AccountEvent
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if err := s.services.Accounts.HandleUserCreated(r.Context(), event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "ok"})
	}
}

func (s *Server) handleUserDeleted() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.AccountEvent
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if err := s.services.Accounts.HandleUserDeleted(r.Context(), event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "ok"})
	}
}

func (s *Server) handleMessageCreated() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.MessageCreatedEvent
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if event.EventID == "" {
			httputil.WriteError(w, r, s.logger, apperrors.NewInvalidInputError("eventId", "is required"))
			return
		}
		if event.RoomID == "" {
			httputil.WriteError(w, r, s.logger, apperrors.NewInvalidInputError("roomId", "is required"))
			return
		}
		if err := s.services.Messages.HandleMessageCreated(r.Context(), event); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eventResponse{Status: "ok"})
	}
}

// handleRevenueCatWebhook answers with plain text bodies; the provider only
// looks at the status code.
func (s *Server) handleRevenueCatWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
			service.LogFieldRemoteIP:  httputil.GetClientIP(r),
		})

		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		secret := s.cfg.Billing.WebhookSecret
		if secret == "" {
			log.Error("RevenueCat webhook secret is not configured")
			http.Error(w, "Server configuration error", http.StatusInternalServerError)
			return
		}

		token, _ := security.BearerToken(r.Header.Get("Authorization"))
		if !security.SecretsEqual(secret, token) {
			log.Warn("Rejected RevenueCat webhook with invalid authorization")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload models.RevenueCatWebhookPayload
		body := http.MaxBytesReader(w, r.Body, s.maxBody())
		if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Event == nil || payload.Event.ID == "" {
			log.Warn("Invalid RevenueCat webhook payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		alreadyProcessed, err := s.services.Billing.ProcessEvent(r.Context(), payload.Event)
		if err != nil {
			http.Error(w, "Processing error", http.StatusInternalServerError)
			return
		}
		if alreadyProcessed {
			writeText(w, http.StatusOK, "Already processed")
			return
		}
		writeText(w, http.StatusOK, "OK")
	}
}

func (s *Server) handleRefreshPushToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.RefreshTokenRequest
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		deviceID, err := s.services.Callables.RefreshPushToken(r.Context(), uid, req)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Success  bool   `json:"success"`
			DeviceID string `json:"deviceId"`
		}{true, deviceID})
	}
}

func (s *Server) handleCreateRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.CreateRoomRequest
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		room, err := s.services.Callables.CreateRoom(r.Context(), uid, req)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, room)
	}
}

func (s *Server) handleJoinRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		joined, err := s.services.Callables.JoinRoom(r.Context(), uid, mux.Vars(r)["roomId"])
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			Joined  bool `json:"joined"`
		}{true, joined})
	}
}

func (s *Server) handleLeaveRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		left, err := s.services.Callables.LeaveRoom(r.Context(), uid, mux.Vars(r)["roomId"])
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			Left    bool `json:"left"`
		}{true, left})
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.SendMessageRequest
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		msg, err := s.services.Callables.SendMessage(r.Context(), uid, mux.Vars(r)["roomId"], req)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, msg)
	}
}

func (s *Server) handleTyping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.TypingRequest
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if req.IsTyping == nil {
			httputil.WriteError(w, r, s.logger, apperrors.NewInvalidInputError("isTyping", "is required"))
			return
		}
		if err := s.services.Callables.SetTypingStatus(r.Context(), uid, mux.Vars(r)["roomId"], *req.IsTyping); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.MarkReadRequest
		if r.ContentLength != 0 {
			if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
				httputil.WriteError(w, r, s.logger, err)
				return
			}
		}
		ts, err := s.services.Callables.MarkMessagesRead(r.Context(), uid, mux.Vars(r)["roomId"], req.MessageID)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Success   bool   `json:"success"`
			Timestamp string `json:"timestamp"`
		}{true, ts.UTC().Format(time.RFC3339Nano)})
	}
}

func (s *Server) handleRoomNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.RoomNotificationsRequest
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if req.Enabled == nil {
			httputil.WriteError(w, r, s.logger, apperrors.NewInvalidInputError("enabled", "is required"))
			return
		}
		if err := s.services.Callables.SetRoomNotifications(r.Context(), uid, mux.Vars(r)["roomId"], *req.Enabled); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

func (s *Server) handleReportUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req models.ReportUserRequest
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &req); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		report, err := s.services.Callables.ReportUser(r.Context(), uid, req)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, report)
	}
}

func (s *Server) handlePreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		var prefs models.NotificationPreferences
		if err := httputil.DecodeJSON(w, r, s.maxBody(), &prefs); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if err := s.services.Callables.UpdateNotificationPreferences(r.Context(), uid, prefs); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

func (s *Server) handleListNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.caller(w, r)
		if !ok {
			return
		}
		notes, err := s.services.Callables.ListNotifications(r.Context(), uid, limitParam(r))
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Notifications []models.Notification `json:"notifications"`
		}{notes})
	}
}

// caller resolves the authenticated user id or writes a 401.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, err := auth.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, r, s.logger, err)
		return "", false
	}
	return uid, true
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
