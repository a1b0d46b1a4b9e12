package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/labqa/qualitylab/pkg/errors"
	"github.com/labqa/qualitylab/pkg/logger"
	"github.com/labqa/qualitylab/pkg/validator"
)

// MaxBodyBytes caps every JSON request body read through DecodeJSON.
const MaxBodyBytes = 1 << 20

// Response is the envelope for successful payloads.
type Response struct {
	Data any `json:"data"`
}

// ErrorBody is the flat error document written for every failed request.
type ErrorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in a Response envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteErrorCode writes an ErrorBody with an explicit status and code. It is
// used by middleware that rejects a request before any handler runs.
func WriteErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{
		Error:     message,
		Code:      code,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	})
}

// WriteError writes the error body for err. Only AppError messages reach the
// client verbatim; server-side failures are logged with their cause.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, code, message := apperrors.Classify(err)
	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		logServerError(r, l, err, status)
	}
	WriteErrorCode(w, r, status, code, message)
}

func logServerError(r *http.Request, l *slog.Logger, err error, status int) {
	l.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

// WriteValidationError writes a 400 with field-level messages when err came
// from the validator package, and a plain INVALID_INPUT otherwise.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, ErrorBody{
			Error:     "request validation failed",
			Code:      "VALIDATION_ERROR",
			Fields:    valErr.Fields(),
			RequestID: requestID,
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, ErrorBody{
		Error:     err.Error(),
		Code:      "INVALID_INPUT",
		RequestID: requestID,
	})
}

// DecodeJSON reads at most MaxBodyBytes of the request body into dst and runs
// struct validation on it.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return validator.Validate(dst)
}

// ParseID parses param as a positive int64 identifier. On failure it writes a
// 400 with code INVALID_PARAMETER and returns false so the caller can return
// early.
func ParseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 {
		WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid id: "+param)
		return 0, false
	}
	return id, true
}
