package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/EAZaidi/Todo-App-Phase-II/pkg/auth"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/httpx"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/tasks"

	"github.com/go-chi/chi/v5"
)

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	var in tasks.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := s.Tasks.Create(r.Context(), owner, in)
	if err != nil {
		s.writeTaskError(w, "CREATE", owner, 0, err)
		return
	}
	log.Printf("CREATE task success - user_id=%s task_id=%d", owner, task.ID)
	s.Metrics.IncOperation("create")
	httpx.WriteJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	list, err := s.Tasks.List(r.Context(), owner)
	if err != nil {
		s.writeTaskError(w, "LIST", owner, 0, err)
		return
	}
	log.Printf("LIST tasks success - user_id=%s count=%d", owner, len(list))
	s.Metrics.IncOperation("list")
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := s.Tasks.Get(r.Context(), owner, id)
	if err != nil {
		s.writeTaskError(w, "GET", owner, id, err)
		return
	}
	s.Metrics.IncOperation("get")
	httpx.WriteJSON(w, http.StatusOK, task)
}

func (s *Server) replaceTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var in tasks.ReplaceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := s.Tasks.Replace(r.Context(), owner, id, in)
	if err != nil {
		s.writeTaskError(w, "UPDATE", owner, id, err)
		return
	}
	log.Printf("UPDATE task success - user_id=%s task_id=%d", owner, id)
	s.Metrics.IncOperation("replace")
	httpx.WriteJSON(w, http.StatusOK, task)
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var in tasks.PatchInput
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := s.Tasks.Patch(r.Context(), owner, id, in)
	if err != nil {
		s.writeTaskError(w, "PATCH", owner, id, err)
		return
	}
	log.Printf("PATCH task success - user_id=%s task_id=%d", owner, id)
	s.Metrics.IncOperation("patch")
	httpx.WriteJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if err := s.Tasks.Delete(r.Context(), owner, id); err != nil {
		s.writeTaskError(w, "DELETE", owner, id, err)
		return
	}
	log.Printf("DELETE task success - user_id=%s task_id=%d", owner, id)
	s.Metrics.IncOperation("delete")
	w.WriteHeader(http.StatusNoContent)
}

// authorizeOwner runs the access gate: the verified subject must equal the
// {userID} path parameter before any datastore access happens.
func (s *Server) authorizeOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}
	owner := chi.URLParam(r, "userID")
	if err := auth.RequireOwner(subject, owner); err != nil {
		log.Printf("AUTHZ denied - subject=%s path_user=%s", subject, owner)
		httpx.Error(w, http.StatusForbidden, "access denied")
		return "", false
	}
	return owner, true
}

// Non-numeric task ids name a resource that cannot exist, so they read as
// not found rather than validation failures.
func taskIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusNotFound, "task not found")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) writeTaskError(w http.ResponseWriter, op, owner string, id int64, err error) {
	var ve *tasks.ValidationError
	switch {
	case errors.As(err, &ve):
		log.Printf("%s task validation failed - user_id=%s field=%s", op, owner, ve.Field)
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "validation failed",
			"field":  ve.Field,
			"detail": ve.Reason,
		})
	case errors.Is(err, tasks.ErrNotFound):
		log.Printf("%s task not found - user_id=%s task_id=%d", op, owner, id)
		httpx.Error(w, http.StatusNotFound, "task not found")
	default:
		log.Printf("%s task failed - user_id=%s task_id=%d err=%v", op, owner, id, err)
		httpx.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
