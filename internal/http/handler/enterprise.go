package handler

import (
	"net/http"
	"strconv"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// EnterpriseHandler serves company administration: employees, roles,
// factories and settings.
type EnterpriseHandler struct {
	service *service.EnterpriseService
}

func NewEnterpriseHandler(service *service.EnterpriseService) *EnterpriseHandler {
	return &EnterpriseHandler{service: service}
}

// GetCompany handles GET /api/v1/enterprise/company
func (h *EnterpriseHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	company, err := h.service.GetCompany(ctx, wctx)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// UpdateSettings handles PATCH /api/v1/enterprise/settings
func (h *EnterpriseHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.UpdateCompanySettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	company, err := h.service.UpdateSettings(ctx, wctx, &req)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// ListFactories handles GET /api/v1/enterprise/factories
func (h *EnterpriseHandler) ListFactories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	factories, err := h.service.ListFactories(ctx, wctx)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeList(w, factories)
}

// CreateFactory handles POST /api/v1/enterprise/factories
func (h *EnterpriseHandler) CreateFactory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.CreateFactoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	factory, err := h.service.CreateFactory(ctx, wctx, &req)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, factory)
}

// ListEmployees handles GET /api/v1/enterprise/employees
func (h *EnterpriseHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	employees, err := h.service.ListEmployees(ctx, wctx)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeList(w, employees)
}

// AddEmployee handles POST /api/v1/enterprise/employees
func (h *EnterpriseHandler) AddEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.AddEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	emp, err := h.service.AddEmployee(ctx, wctx, &req)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

// UpdateEmployee handles PATCH /api/v1/enterprise/employees/{employeeId}
func (h *EnterpriseHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.UpdateEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	emp, err := h.service.UpdateEmployee(ctx, wctx, chi.URLParam(r, "employeeId"), &req)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// RemoveEmployee handles DELETE /api/v1/enterprise/employees/{employeeId}?hard=true
func (h *EnterpriseHandler) RemoveEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	hard := false
	if raw := optionalQuery(r, "hard"); raw != nil {
		v, err := strconv.ParseBool(*raw)
		if err != nil {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "hard must be true or false")
			return
		}
		hard = v
	}

	if err := h.service.RemoveEmployee(ctx, wctx, chi.URLParam(r, "employeeId"), hard); err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRoles handles GET /api/v1/enterprise/roles
func (h *EnterpriseHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	roles, err := h.service.ListRoles(ctx, wctx)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeList(w, roles)
}

// GetRole handles GET /api/v1/enterprise/roles/{roleId}
func (h *EnterpriseHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	role, err := h.service.GetRole(ctx, wctx, chi.URLParam(r, "roleId"))
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// CreateRole handles POST /api/v1/enterprise/roles
func (h *EnterpriseHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.CreateRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	role, err := h.service.CreateRole(ctx, wctx, &req)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// UpdateRole handles PATCH /api/v1/enterprise/roles/{roleId}
func (h *EnterpriseHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.UpdateRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	role, err := h.service.UpdateRole(ctx, wctx, chi.URLParam(r, "roleId"), &req)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// DeleteRole handles DELETE /api/v1/enterprise/roles/{roleId}
func (h *EnterpriseHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteRole(ctx, wctx, chi.URLParam(r, "roleId")); err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
