package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/rs/zerolog/log"
)

func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders err for a client. Internal failures never leak their message.
func errorBody(err error) (int, ErrorBody) {
	kind := apperrors.KindOf(err)
	status := statusOf(kind)
	if kind == apperrors.KindInternal {
		return status, ErrorBody{Error: apperrors.CodeInternal, Message: "internal error"}
	}
	return status, ErrorBody{Error: apperrors.CodeOf(err), Message: err.Error()}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation(apperrors.ErrInvalidBody.Code, "invalid request body: %v", err)
	}
	return nil
}
