package tasks

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/httpx"
)

// Handler serves /api/tasks. Every route expects a verified identity in the
// request context.
type Handler struct {
	svc          *Service
	log          *slog.Logger
	maxBodyBytes int64
	now          func() time.Time
}

type HandlerOption func(*Handler)

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) { h.maxBodyBytes = n }
}

// WithClock overrides the handler's time source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(svc *Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:          svc,
		log:          slog.Default(),
		maxBodyBytes: httpx.DefaultMaxBodyBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the task routes behind protect.
func (h *Handler) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /api/tasks", protect(http.HandlerFunc(h.handleList)))
	mux.Handle("POST /api/tasks", protect(http.HandlerFunc(h.handleCreate)))
	mux.Handle("GET /api/tasks/{id}", protect(http.HandlerFunc(h.handleGet)))
	mux.Handle("PUT /api/tasks/{id}", protect(http.HandlerFunc(h.handleUpdate)))
	mux.Handle("DELETE /api/tasks/{id}", protect(http.HandlerFunc(h.handleDelete)))
}

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	DueDate     *string `json:"dueDate"`
}

type taskResponse struct {
	Task Task `json:"task"`
}

type listResponse struct {
	Tasks []Task `json:"tasks"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	out, err := h.svc.List(r.Context(), id.PrincipalID)
	if err != nil {
		h.writeErr(w, "tasks.list.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Tasks: out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id.PrincipalID, r.PathValue("id"))
	if err != nil {
		h.writeErr(w, "tasks.get.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, taskResponse{Task: t})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	d, err := req.draft()
	if err != nil {
		h.writeErr(w, "tasks.create.fail", err)
		return
	}
	t, err := h.svc.Create(r.Context(), h.now(), id.PrincipalID, d)
	if err != nil {
		h.writeErr(w, "tasks.create.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, taskResponse{Task: t})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	p, err := req.patch()
	if err != nil {
		h.writeErr(w, "tasks.update.fail", err)
		return
	}
	t, err := h.svc.Update(r.Context(), h.now(), id.PrincipalID, r.PathValue("id"), p)
	if err != nil {
		h.writeErr(w, "tasks.update.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, taskResponse{Task: t})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id.PrincipalID, r.PathValue("id")); err != nil {
		h.writeErr(w, "tasks.delete.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Task deleted successfully"})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	id, ok := session.IdentityFromContext(r.Context())
	if !ok {
		w.Header().Set(session.HeaderAuthError, session.CodeCredentialMissing)
		httpx.WriteError(w, http.StatusUnauthorized, session.CodeCredentialMissing, "authentication required")
		return session.Identity{}, false
	}
	return id, true
}

func (h *Handler) writeErr(w http.ResponseWriter, event string, err error) {
	var verr ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", verr.Msg)
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Task not found")
	default:
		h.log.Error(event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (r taskRequest) draft() (Draft, error) {
	d := Draft{}
	if r.Title != nil {
		d.Title = *r.Title
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.Priority != nil {
		d.Priority = Priority(strings.TrimSpace(*r.Priority))
	}
	if r.Status != nil {
		d.Status = Status(strings.TrimSpace(*r.Status))
	}
	if r.DueDate != nil {
		due, err := parseDueDate(*r.DueDate)
		if err != nil {
			return Draft{}, err
		}
		d.DueDate = due
	}
	return d, nil
}

func (r taskRequest) patch() (Patch, error) {
	p := Patch{
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Priority != nil {
		v := Priority(strings.TrimSpace(*r.Priority))
		p.Priority = &v
	}
	if r.Status != nil {
		v := Status(strings.TrimSpace(*r.Status))
		p.Status = &v
	}
	if r.DueDate != nil {
		due, err := parseDueDate(*r.DueDate)
		if err != nil {
			return Patch{}, err
		}
		p.DueDate = due
		p.ClearDueDate = due == nil
	}
	return p, nil
}

// parseDueDate accepts RFC 3339 timestamps and plain dates. An empty string
// means no due date.
func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ValidationError{Field: "dueDate", Msg: "dueDate must be an RFC 3339 timestamp or YYYY-MM-DD"}
}
