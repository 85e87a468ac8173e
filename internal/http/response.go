package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps the ledger error taxonomy onto HTTP status codes.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, "malformed_body"
	}
	switch kind := core.KindOf(err); kind {
	case core.KindNotFound:
		return http.StatusNotFound, string(kind)
	case core.KindInvalidInput:
		return http.StatusUnprocessableEntity, string(kind)
	case core.KindConflict, core.KindConstraintViolation:
		return http.StatusConflict, string(kind)
	case core.KindStoreUnavailable:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, string(core.KindInternal)
	}
}

// writeError renders err as JSON. Internal errors are logged and their text
// is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusOf(err)
	msg := err.Error()

	logger := log.FromContext(r.Context())
	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithError(err, kind).ToSlice()...)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
	case status != http.StatusNotFound:
		logger.DebugContext(r.Context(), "Request rejected",
			log.NewFields().WithError(err, kind).ToSlice()...)
	}

	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

var errMalformedBody = errors.New("malformed request body")

// decodeJSON reads one JSON object into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		// Field values that fail their own parsing carry the ledger taxonomy.
		if core.KindOf(err) == core.KindInvalidInput {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data", errMalformedBody)
	}
	return validateStruct(dst)
}
