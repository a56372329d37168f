package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/securebox/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrExpired),
		errors.Is(err, common.ErrAlreadyDownloaded),
		errors.Is(err, common.ErrConflict):
		return http.StatusGone
	case errors.Is(err, common.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		// EncryptionFailed, StorageFailed, DecryptionFailed and anything
		// unexpected.
		return http.StatusInternalServerError
	}
}

// message returns the client-facing text for an error. Internal failures are
// never echoed verbatim.
func message(err error, status int) string {
	switch status {
	case http.StatusNotFound:
		return "invalid or expired download link"
	case http.StatusGone:
		if errors.Is(err, common.ErrExpired) {
			return "file has expired"
		}
		return "file already downloaded"
	case http.StatusUnauthorized:
		return "invalid password"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case http.StatusBadRequest:
		return err.Error()
	default:
		return "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, errorResponse{Error: message(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
