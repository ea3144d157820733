package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
)

type errorBody struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	CurrentVersion *int64 `json:"currentVersion,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeError maps service errors onto the HTTP error taxonomy. A version
// conflict carries the server's current version so clients can resolve
// without an extra fetch.
func writeError(w http.ResponseWriter, err error) {
	var vc *common.VersionConflictError
	if errors.As(err, &vc) {
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Code:           "VERSION_CONFLICT",
			Message:        "file was modified by someone else",
			CurrentVersion: &vc.CurrentVersion,
		}})
		return
	}

	switch {
	case errors.Is(err, common.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "FILE_NOT_FOUND", "file not found")
	case errors.Is(err, common.ErrVersionConflict):
		writeErrorCode(w, http.StatusConflict, "VERSION_CONFLICT", "file was modified by someone else")
	case errors.Is(err, common.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "access denied")
	case errors.Is(err, common.ErrInvalidInput):
		writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	default:
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.ErrInvalidInput
	}
	return nil
}
