package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

// StatusFor maps an error kind onto the HTTP status clients see.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindIntegrity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// Error writes err as a JSON error response. Internal failures are logged
// with their cause and reported without it.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		InternalServerError(w, r.Method+" "+r.URL.Path+" failed", err)
		return
	}

	log.Warn().Err(err).Str("kind", string(kind)).Str("path", r.URL.Path).Msg("request failed")
	WriteJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// DecodeJSON reads a JSON request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	log.Error().Err(err).Msg(msg)
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error", Kind: apperr.KindInternal})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	event := log.Warn().Str("message", msg)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("bad request")
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: apperr.KindValidation})
}

func Unauthorized(w http.ResponseWriter, msg string) {
	log.Warn().Str("message", msg).Msg("unauthorized")
	WriteJSON(w, http.StatusUnauthorized, errorBody{Error: msg})
}
