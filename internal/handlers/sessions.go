package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studio-backend/internal/models"
	"studio-backend/internal/services"
)

type SessionHandler struct {
	scheduling *services.SchedulingService
	logger     *zap.Logger
}

func NewSessionHandler(scheduling *services.SchedulingService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{scheduling: scheduling, logger: logger}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidBody(w, r)
		return
	}

	session, err := h.scheduling.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, session)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	session, err := h.scheduling.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, session)
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidBody(w, r)
		return
	}

	session, err := h.scheduling.Update(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, session)
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	session, err := h.scheduling.StartSession(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, session)
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	// The body is optional; without one no package is debited.
	var req models.CompleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		invalidBody(w, r)
		return
	}

	result, err := h.scheduling.CompleteSession(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, result)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.scheduling.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

func (h *SessionHandler) Search(w http.ResponseWriter, r *http.Request) {
	params, fields := parseSearchParams(r)
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid search parameters", fields, r))
		return
	}

	sessions, total, applied, err := h.scheduling.Search(r.Context(), params)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writePage(w, sessions, models.PageMeta{Total: total, Page: applied.Page, Limit: applied.Limit})
}

// parseSearchParams reads the query string. Value checks beyond syntax are
// left to the service.
func parseSearchParams(r *http.Request) (models.SessionSearchParams, map[string]string) {
	q := r.URL.Query()
	fields := make(map[string]string)
	var params models.SessionSearchParams

	for _, raw := range q["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				params.Statuses = append(params.Statuses, models.SessionStatus(st))
			}
		}
	}

	if v := q.Get("member_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			fields["member_id"] = "Invalid member id"
		} else {
			params.MemberID = &id
		}
	}

	params.SubDeviceID = strings.TrimSpace(q.Get("sub_device_id"))

	for _, key := range []string{"from", "to"} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields[key] = "Must be an RFC 3339 timestamp"
			continue
		}
		if key == "from" {
			params.From = &t
		} else {
			params.To = &t
		}
	}

	params.SortBy = models.SessionSortField(q.Get("sort_by"))
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		params.SortDesc = true
	default:
		fields["order"] = "Order must be asc or desc"
	}

	for key, dst := range map[string]*int{"page": &params.Page, "limit": &params.Limit} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields[key] = "Must be a positive integer"
			continue
		}
		*dst = n
	}

	return params, fields
}
