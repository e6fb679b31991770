package errors

import (
	"github.com/sirupsen/logrus"
)

// Fields flattens an AppError's code, retryability and context into log
// fields. Plain errors yield only the error field.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{logrus.ErrorKey: err}
	appErr, ok := As(err)
	if !ok {
		return fields
	}
	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// LevelFor picks the level an error is logged at: caller mistakes at info,
// retryable failures at warn, everything else at error.
func LevelFor(err error) logrus.Level {
	switch GetCode(err) {
	case ErrCodeUnauthenticated, ErrCodeInvalidInput, ErrCodePermissionDenied,
		ErrCodeNotFound, ErrCodeRateLimited, ErrCodeAlreadyProcessed:
		return logrus.InfoLevel
	}
	if IsRetryable(err) {
		return logrus.WarnLevel
	}
	return logrus.ErrorLevel
}

// Log writes err on entry with its structured fields at LevelFor(err).
func Log(entry *logrus.Entry, err error, message string) {
	entry.WithFields(Fields(err)).Log(LevelFor(err), message)
}
