package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/penter405/cubetimer-backend/internal/common"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, err error, details string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(ctx, "request failed", "status", status, "err", err)
	} else {
		h.logger.Warn(ctx, "request rejected", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: publicMessage(err), Details: details})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, common.ErrStoreUnavailable), errors.Is(err, common.ErrCapacityDrift):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps storage details out of responses; clients get the
// sentinel's text, logs get the full chain.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		common.ErrInvalidInput,
		common.ErrInvalidToken,
		common.ErrSyncInProgress,
		common.ErrStoreUnavailable,
		common.ErrCapacityDrift,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
