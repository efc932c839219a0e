// Package httpjson holds the JSON request/response helpers shared by the
// HTTP handlers.
package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"libralend/internal/apperrors"
	"libralend/internal/logger"
)

type errorBody struct {
	Error string `json:"error"`
}

// Write encodes v with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctx := context.Background()
		logger.Log(ctx).Warn(ctx, "encode response", zap.Error(err))
	}
}

// Error writes err with the status its kind maps to. Internal errors are
// logged and their message hidden.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log(r.Context()).Error(r.Context(), "request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	Write(w, status, errorBody{Error: msg})
}

// Decode reads a JSON body into v. Malformed bodies become validation errors.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return apperrors.Invalid("body", "malformed JSON at offset %d", syntaxErr.Offset)
		}
		return apperrors.Invalid("body", "%v", err)
	}
	return nil
}
