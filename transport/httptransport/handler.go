package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	medsync "github.com/dosetrack/medsync"
)

// Service is the server-side counterpart of the transport client.
// Implementations back the /v1 endpoints with whatever authoritative store
// the server uses.
type Service interface {
	// CurrentSnapshot returns the authoritative server snapshot.
	CurrentSnapshot(ctx context.Context) (medsync.DomainSnapshot, error)

	// ApplyMutation applies a replayed client mutation.
	ApplyMutation(ctx context.Context, item medsync.QueueItem) error

	// StoreSnapshot replaces the authoritative snapshot with a merged one.
	StoreSnapshot(ctx context.Context, snapshot medsync.DomainSnapshot) error
}

// Handler serves the /v1 sync API over a Service.
type Handler struct {
	service      Service
	maxBodyBytes int64
}

// NewHandler creates a sync HTTP handler backed by service.
func NewHandler(service Service) *Handler {
	return &Handler{
		service:      service,
		maxBodyBytes: 8 << 20, // 8MB
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/snapshot":
		switch r.Method {
		case http.MethodGet:
			h.handleFetchSnapshot(w, r)
		case http.MethodPut:
			h.handlePushSnapshot(w, r)
		default:
			respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "/v1/mutations":
		if r.Method != http.MethodPost {
			respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleSubmitMutation(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleFetchSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.CurrentSnapshot(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleSubmitMutation(w http.ResponseWriter, r *http.Request) {
	var item medsync.QueueItem
	if err := h.decodeBody(r, &item); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid mutation payload")
		return
	}
	if item.Action == "" {
		respondWithError(w, http.StatusBadRequest, "mutation action is required")
		return
	}

	if err := h.service.ApplyMutation(r.Context(), item); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"id": item.ID})
}

func (h *Handler) handlePushSnapshot(w http.ResponseWriter, r *http.Request) {
	var snapshot medsync.DomainSnapshot
	if err := h.decodeBody(r, &snapshot); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid snapshot payload")
		return
	}

	if err := h.service.StoreSnapshot(r.Context(), snapshot); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeBody(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, h.maxBodyBytes)
	return json.NewDecoder(body).Decode(v)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
