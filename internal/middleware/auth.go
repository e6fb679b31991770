package middleware

import (
	"net/http"

	"raine/internal/auth"
	"raine/internal/errors"
	"raine/internal/httputil"
	"raine/internal/security"
	"raine/internal/service"
	"raine/internal/tracing"

	"github.com/sirupsen/logrus"
)

// EventSecretHeader authenticates internal event deliveries.
const EventSecretHeader = "X-Event-Secret"

// RequireAuth verifies the bearer token and stores the caller identity in
// the request context. Requests without a valid token get 401.
func RequireAuth(verifier auth.Verifier, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := security.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				httputil.WriteError(w, r, logger, errors.NewUnauthenticatedError("missing bearer token"))
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
					service.LogFieldRemoteIP:  httputil.GetClientIP(r),
					"reason":                  err.Error(),
				}).Debug("Rejected caller token")
				httputil.WriteError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireEventSecret guards the internal trigger endpoints with a shared
// secret compared in constant time. An unconfigured secret rejects every call.
func RequireEventSecret(secret string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !security.SecretsEqual(secret, r.Header.Get(EventSecretHeader)) {
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
					service.LogFieldRemoteIP:  httputil.GetClientIP(r),
					service.LogFieldURL:       r.URL.Path,
				}).Warn("Rejected event delivery with invalid secret")
				httputil.WriteError(w, r, logger, errors.NewUnauthenticatedError("invalid event secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
