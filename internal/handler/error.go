package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"

	"github.com/DukeRupert/pinreport/internal/domain"
)

// ErrorBody is the JSON error envelope. Only the fields relevant to the
// error code are set.
type ErrorBody struct {
	Error struct {
		Code          string            `json:"code"`
		Message       string            `json:"message"`
		MissingFields []string          `json:"missing_fields,omitempty"`
		InvalidFields map[string]string `json:"invalid_fields,omitempty"`
		Resolved      string            `json:"resolved_jurisdiction,omitempty"`
		Registered    string            `json:"registered_jurisdiction,omitempty"`
	} `json:"error"`
}

// ErrorResponse maps err to a status code and writes the JSON envelope.
// Operation names and wrapped causes never reach the client.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, domain.ErrorOp(err), status)

	var body ErrorBody
	body.Error.Code = code
	body.Error.Message = domain.ErrorMessage(err)

	var ve *domain.ValidationError
	var me *domain.JurisdictionMismatchError
	switch {
	case errors.As(err, &ve):
		body.Error.MissingFields = ve.MissingFields
		body.Error.InvalidFields = maps.Clone(ve.InvalidFields)
	case errors.As(err, &me):
		body.Error.Resolved = me.Resolved
		body.Error.Registered = me.Registered
	}

	writeJSON(w, status, body)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT, domain.EMISMATCH:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.EPROFILE:
		return http.StatusUnprocessableEntity // 422
	default:
		return http.StatusInternalServerError // 500
	}
}

// logError logs 5xx at error and 4xx at info.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	if status >= 500 {
		logger.Error("server error", attrs...)
	} else {
		logger.Info("client error", attrs...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
