package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/giall/hecate"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

type errorKind struct {
	status  int
	code    string
	message string
}

var errorKinds = []struct {
	target error
	kind   errorKind
}{
	{hecate.ErrTokenTypeMismatch, errorKind{http.StatusForbidden, "TOKEN_TYPE_MISMATCH", "Invalid token."}},
	{hecate.ErrInvalidToken, errorKind{http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token."}},
	{hecate.ErrInvalidCredentials, errorKind{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials."}},
	{hecate.ErrSessionNotMember, errorKind{http.StatusForbidden, "INVALID_SESSION", "Invalid session."}},
	{hecate.ErrConflict, errorKind{http.StatusConflict, "CONFLICT", "Username or email is already in use."}},
	{hecate.ErrAlreadyConsumed, errorKind{http.StatusGone, "ALREADY_USED", "Token has already been used."}},
	{hecate.ErrPasswordPolicy, errorKind{http.StatusBadRequest, "INVALID_INPUT", "Invalid input."}},
	{hecate.ErrPasswordReuse, errorKind{http.StatusBadRequest, "PASSWORD_REUSE", "New password must be different from current password."}},
	{hecate.ErrInvalidInput, errorKind{http.StatusBadRequest, "INVALID_INPUT", "Invalid input."}},
	{hecate.ErrSessionContention, errorKind{http.StatusServiceUnavailable, "BUSY", "Please try again."}},
}

var internalError = errorKind{http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong; please try again."}

func classify(err error) errorKind {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return internalError
}

// writeEngineError maps an Engine error onto a response. Rate limit errors
// also set Retry-After.
func writeEngineError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var rl *hecate.RateLimitError
	if errors.As(err, &rl) {
		setRateLimitHeaders(w, rl.Limit, rl.Remaining, rl.ResetAt)
		secs := int(rl.RetryAfter(time.Now()) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests.")
		return
	}

	k := classify(err)
	if k.status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeError(w, k.status, k.code, k.message)
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}
