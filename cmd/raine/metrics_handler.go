package main

import (
	"encoding/json"
	"net/http"

	"raine/internal/metrics"
	"raine/internal/service"
	"raine/internal/tracing"
)

var noCacheHeaders = map[string]string{
	"Cache-Control": "no-cache, no-store, must-revalidate",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

// handleMetrics serves the in-process counters, timers and gauges, including
// the retry queue depth published after each retry run.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := json.MarshalIndent(metrics.GetSnapshot(), "", "  ")
		if err != nil {
			s.logger.WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context())).
				WithError(err).Error("Failed to encode metrics snapshot")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		for k, v := range noCacheHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(append(body, '\n'))
	}
}
