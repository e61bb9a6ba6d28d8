// Package httpapi exposes the persistence-backed REST endpoints: roles,
// conversations, messages, TTS provider catalogue, and interaction metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gumelab/gume/internal/store"
)

// Handler serves the JSON API. All routes are mounted under /api/.
type Handler struct {
	Store store.Store
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/roles", h.listRoles)
	mux.HandleFunc("POST /api/roles", h.createRole)
	mux.HandleFunc("GET /api/roles/{id}", h.getRole)

	mux.HandleFunc("GET /api/conversations", h.listConversations)
	mux.HandleFunc("POST /api/conversations", h.createConversation)
	mux.HandleFunc("GET /api/conversations/{id}", h.getConversation)
	mux.HandleFunc("POST /api/conversations/{id}/end", h.endConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.listMessages)

	mux.HandleFunc("GET /api/tts-providers", h.listProviders)
	mux.HandleFunc("POST /api/tts-providers", h.createProvider)

	mux.HandleFunc("GET /api/users/{id}/metrics", h.listUserRoleMetrics)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	// Inactive roles are hidden unless explicitly requested.
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	roles, err := h.Store.ListRoles(r.Context(), activeOnly)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(roles))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var role store.Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := role.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.Store.CreateRole(r.Context(), &role)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.Store.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	convs, err := h.Store.ListConversations(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(convs))
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		RoleID string `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	conv, err := h.Store.CreateConversation(r.Context(), req.UserID, req.RoleID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) endConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Store.EndConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := h.Store.ListMessages(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(msgs))
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListProviders(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var rec store.TTSProviderRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.Store.CreateProvider(r.Context(), &rec)
	if err != nil {
		if errors.Is(err, store.ErrProviderExists) {
			writeError(w, http.StatusConflict, "provider key already exists")
			return
		}
		if rec.Key == "" || rec.Name == "" {
			writeError(w, http.StatusBadRequest, "key and name are required")
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listUserRoleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.Store.ListUserRoleMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(metrics))
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("api request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// orEmpty turns a nil slice into an empty one so list endpoints always
// serialise to a JSON array.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
