// Package api is the administrative surface: a JSON HTTP API backed
// one-to-one by the scheduler's CRUD operations. The platform's session
// layer is out of scope here; caller identity and rights arrive as headers
// set by the front-end proxy.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskwell/internal/access"
	"taskwell/internal/registry"
	"taskwell/internal/schedule"
	"taskwell/internal/scheduler"
	"taskwell/internal/task"
)

type Server struct {
	sched *scheduler.Scheduler
	reg   *registry.Registry
}

func NewServer(sched *scheduler.Scheduler, reg *registry.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{sched: sched, reg: reg}

	r.Get("/health", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/handlers", s.listHandlers)
		r.Get("/tasks", s.listTasks)
		r.Post("/tasks", s.createTask)
		r.Delete("/tasks", s.deleteByKey)
		r.Get("/tasks/{id}", s.getTask)
		r.Put("/tasks/{id}", s.updateTask)
		r.Delete("/tasks/{id}", s.deleteTask)
	})
	return r
}

type caller struct {
	userID uint32
	rights access.Rights
}

// callerFrom reads the identity headers. User id 0 is the system identity
// and is never accepted from the network.
func callerFrom(r *http.Request) (caller, bool) {
	id, err := strconv.ParseUint(r.Header.Get("X-User-ID"), 10, 32)
	if err != nil || id == uint64(access.SystemUser) {
		return caller{}, false
	}
	bits, _ := strconv.ParseUint(r.Header.Get("X-User-Rights"), 10, 64)
	return caller{userID: uint32(id), rights: access.Rights(bits)}, true
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, scheduler.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrPersistence):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type taskRequest struct {
	HandlerID string     `json:"handler_id"`
	Schedule  string     `json:"schedule,omitempty"`
	RunAt     *time.Time `json:"run_at,omitempty"`
	Data      string     `json:"data"`
	ObjectID  uint32     `json:"object_id"`
	Comments  string     `json:"comments"`
	Key       string     `json:"key"`
	Disabled  bool       `json:"disabled"`
	Owner     *uint32    `json:"owner,omitempty"` // update only; defaults to current owner
}

type taskResponse struct {
	task.Snapshot
	NextRun *time.Time `json:"next_run,omitempty"`
}

func respond(sn task.Snapshot) taskResponse {
	resp := taskResponse{Snapshot: sn}
	if sn.Schedule != "" {
		if next, err := schedule.Next(sn.Schedule, time.Now()); err == nil && !next.IsZero() {
			resp.NextRun = &next
		}
	}
	return resp
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Health())
}

func (s *Server) listHandlers(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handlers": s.reg.Enumerate(c.rights)})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	key := r.URL.Query().Get("key")
	handlerID := r.URL.Query().Get("handler_id")
	var filter func(task.Snapshot) bool
	if key != "" || handlerID != "" {
		filter = func(sn task.Snapshot) bool {
			if key != "" && sn.Key != key {
				return false
			}
			if handlerID != "" && sn.HandlerID != handlerID {
				return false
			}
			return true
		}
	}
	snaps := s.sched.List(c.userID, c.rights, filter)
	out := make([]taskResponse, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, respond(sn))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.HandlerID == "" {
		http.Error(w, "handler_id is required", http.StatusBadRequest)
		return
	}
	sp := task.Settings{
		HandlerID: req.HandlerID,
		Schedule:  req.Schedule,
		Data:      req.Data,
		Owner:     c.userID,
		ObjectID:  req.ObjectID,
		Comments:  req.Comments,
		Key:       req.Key,
		Disabled:  req.Disabled,
	}
	var (
		id  uint64
		err error
	)
	if req.Schedule != "" {
		id, err = s.sched.CreateRecurrent(r.Context(), sp, c.rights)
	} else {
		if req.RunAt == nil {
			http.Error(w, "either schedule or run_at is required", http.StatusBadRequest)
			return
		}
		sp.RunAt = *req.RunAt
		id, err = s.sched.CreateOneTime(r.Context(), sp, c.rights)
	}
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	sn, err := s.sched.Get(id, c.userID, c.rights)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, respond(sn))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	current, err := s.sched.Get(id, c.userID, c.rights)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	owner := current.Owner
	if req.Owner != nil {
		owner = *req.Owner
	}
	sp := task.Settings{
		HandlerID: req.HandlerID,
		Schedule:  req.Schedule,
		Data:      req.Data,
		Owner:     owner,
		ObjectID:  req.ObjectID,
		Comments:  req.Comments,
		Key:       req.Key,
		System:    current.System,
		Disabled:  req.Disabled,
	}
	if req.RunAt != nil {
		sp.RunAt = *req.RunAt
	}
	if err := s.sched.Update(r.Context(), id, sp, c.userID, c.rights); err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	sn, err := s.sched.Get(id, c.userID, c.rights)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, respond(sn))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	err = s.sched.Delete(r.Context(), id, c.userID, c.rights)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, scheduler.ErrBusy):
		// Not lost: the task is disabled and removed once the current
		// execution finishes.
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    err.Error(),
			"deferred": true,
		})
	default:
		http.Error(w, err.Error(), errStatus(err))
	}
}

func (s *Server) deleteByKey(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	if !c.rights.Any(access.ManageAllTasks) {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	n := s.sched.DeleteByKey(r.Context(), key)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
