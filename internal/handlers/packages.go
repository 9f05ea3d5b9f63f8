package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"studio-backend/internal/models"
	"studio-backend/internal/services"
)

type PackageHandler struct {
	packages *services.PackageService
	logger   *zap.Logger
}

func NewPackageHandler(packages *services.PackageService, logger *zap.Logger) *PackageHandler {
	return &PackageHandler{packages: packages, logger: logger}
}

func (h *PackageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidBody(w, r)
		return
	}

	pkg, err := h.packages.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, pkg)
}

func (h *PackageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	pkg, err := h.packages.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, pkg)
}

func (h *PackageHandler) Use(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.UsePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidBody(w, r)
		return
	}
	req.PackageID = id

	pkg, err := h.packages.UsePackageSessions(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, pkg)
}

func (h *PackageHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.ExtendPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidBody(w, r)
		return
	}
	req.PackageID = id

	pkg, err := h.packages.ExtendPackage(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, pkg)
}

func (h *PackageHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	pkg, err := h.packages.Deactivate(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, pkg)
}

func (h *PackageHandler) Usages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	usages, err := h.packages.Usages(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, usages)
}

func (h *PackageHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid query parameters",
				map[string]string{"limit": "Must be a positive integer"}, r))
			return
		}
		limit = n
	}

	packages, err := h.packages.GetExpiringPackages(r.Context(), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, packages)
}
