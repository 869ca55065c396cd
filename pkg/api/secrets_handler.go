package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/execcore/pkg/secretsbroker"
)

// SecretsHandler serves the internal-only Secrets Broker surface. Every
// route requires the X-Internal-Key header; the broker itself renders a
// wrong key identically to NOT_FOUND, so this handler never needs to
// special-case authentication failures.
type SecretsHandler struct {
	broker *secretsbroker.Broker
}

func NewSecretsHandler(broker *secretsbroker.Broker) *SecretsHandler {
	return &SecretsHandler{broker: broker}
}

// Mount registers this handler's routes on r.
func (h *SecretsHandler) Mount(r chi.Router) {
	r.Post("/internal/secrets/credential-upsert", h.upsert)
	r.Post("/internal/secrets/credential-lookup", h.lookup)
	r.Delete("/internal/secrets/{host}/{purpose}", h.delete)
}

type credentialUpsertRequest struct {
	Host     string `json:"host" validate:"required"`
	Purpose  string `json:"purpose" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Domain   string `json:"domain,omitempty"`
}

func (h *SecretsHandler) upsert(w http.ResponseWriter, r *http.Request) {
	var req credentialUpsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := h.broker.Upsert(r.Context(), internalKey(r), actorID(r), req.Host, req.Purpose, req.Username, req.Password, req.Domain)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type credentialLookupRequest struct {
	Host    string `json:"host" validate:"required"`
	Purpose string `json:"purpose" validate:"required"`
}

type credentialLookupResponse struct {
	Handle   string `json:"handle"`
	Username string `json:"username"`
	Domain   string `json:"domain,omitempty"`
}

func (h *SecretsHandler) lookup(w http.ResponseWriter, r *http.Request) {
	var req credentialLookupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.broker.Lookup(r.Context(), internalKey(r), actorID(r), req.Host, req.Purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialLookupResponse{
		Handle:   result.Handle,
		Username: result.RedactedUsername,
		Domain:   result.Domain,
	})
}

func (h *SecretsHandler) delete(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	purpose := chi.URLParam(r, "purpose")
	if err := h.broker.Delete(r.Context(), internalKey(r), actorID(r), host, purpose); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func internalKey(r *http.Request) string { return r.Header.Get("X-Internal-Key") }
