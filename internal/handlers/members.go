package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"studio-backend/internal/models"
	"studio-backend/internal/services"
)

type MemberHandler struct {
	members    *services.MemberService
	packages   *services.PackageService
	scheduling *services.SchedulingService
	logger     *zap.Logger
}

func NewMemberHandler(members *services.MemberService, packages *services.PackageService, scheduling *services.SchedulingService, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{members: members, packages: packages, scheduling: scheduling, logger: logger}
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidBody(w, r)
		return
	}

	member, err := h.members.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, member)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	member, err := h.members.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, member)
}

func (h *MemberHandler) Packages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.members.Get(r.Context(), id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	packages, err := h.packages.ListByMember(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, packages)
}

func (h *MemberHandler) UpcomingSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if _, err := h.members.Get(r.Context(), id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	sessions, err := h.scheduling.UpcomingForMember(r.Context(), id, limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, sessions)
}
