package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"raine/internal/errors"
	"raine/internal/tracing"

	"github.com/sirupsen/logrus"
)

// WriteJSON writes v as a JSON body with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its HTTP status and writes the standard error body.
// Caller errors are logged at info, server failures at warn or error.
func WriteError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	status := errors.HTTPStatusCode(err)
	requestID := tracing.GetRequestID(r.Context())

	if logger != nil {
		errors.Log(logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"url":        r.URL.Path,
			"status":     status,
		}), err, "Request failed")
	}

	WriteJSON(w, status, errors.ToHTTPResponse(err, requestID))
}

// DecodeJSON decodes a bounded JSON body into dst. Unknown fields are allowed.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.NewInvalidInputError("body", "content type must be application/json")
	}

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.NewInvalidInputError("body", "request body is empty")
		}
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed JSON body").
			WithContext("field", "body").
			WithUserMessage("Invalid body: malformed JSON")
	}
	return nil
}
