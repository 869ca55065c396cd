package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// validate is shared across every handler; validator.Validate is safe
// for concurrent use once constructed.
var validate = validator.New()

// errorEnvelope is the wire shape spec.md §6 defines for every failed
// request.
type errorEnvelope struct {
	Error struct {
		Kind    apperr.Kind    `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// statusForKind maps an apperr.Kind onto its HTTP status. Kinds with no
// entry fall back to 500.
var statusForKind = map[apperr.Kind]int{
	apperr.KindValidation:  http.StatusBadRequest,
	apperr.KindPolicy:      http.StatusForbidden,
	apperr.KindNotFound:    http.StatusNotFound,
	apperr.KindDuplicate:   http.StatusConflict,
	apperr.KindConflict:    http.StatusConflict,
	apperr.KindTimeout:     http.StatusGatewayTimeout,
	apperr.KindCircuitOpen: http.StatusServiceUnavailable,
	apperr.KindRateLimited: http.StatusTooManyRequests,
	apperr.KindTransient:   http.StatusServiceUnavailable,
	apperr.KindInternal:    http.StatusInternalServerError,
}

// writeError renders err as the shared error envelope at the status its
// Kind maps to. Never called with a nil err.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status, ok := statusForKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	var body errorEnvelope
	body.Error.Kind = kind
	body.Error.Message = err.Error()
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
		body.Error.Message = appErr.Message
		body.Error.Details = appErr.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON renders v as a 200 JSON body, or status if nonzero.
func writeJSON(w http.ResponseWriter, status int, v any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "malformed request body")
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return "request failed validation"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}
