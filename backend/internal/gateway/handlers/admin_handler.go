package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"student_records/backend/internal/admin"
	"student_records/backend/internal/gateway/util"
)

// AdminHandler serves the admin-only account and statistics routes.
type AdminHandler struct {
	Admin *admin.AdminService
}

// -- Request Structs --

type RESTCreateUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
	Role  string `json:"role" validate:"required,oneof=user admin"`
}

type RESTToggleUserStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// GetSystemStats handles GET /admin/stats
func (h *AdminHandler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.Admin.GetSystemStats(ctx)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// CreateUser handles POST /admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTCreateUserRequest
	if !util.DecodeAndValidate(w, r, &reqBody) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Admin.CreateUser(ctx, reqBody.Email, reqBody.Name, reqBody.Role)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":          true,
		"message":          "user created",
		"user":             res.User,
		"initial_password": res.InitialPassword,
	})
}

// ListUsers handles GET /admin/users?role=&active_only=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly := q.Get("active_only") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	users, err := h.Admin.ListUsers(ctx, q.Get("role"), activeOnly)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"users":       users,
		"total_count": len(users),
	})
}

// ToggleUserStatus handles PATCH /admin/users/{id}/status
func (h *AdminHandler) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := util.PrincipalFrom(r)

	var reqBody RESTToggleUserStatusRequest
	if !util.DecodeAndValidate(w, r, &reqBody) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Admin.SetUserStatus(ctx, actor, chi.URLParam(r, "id"), *reqBody.IsActive); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "status updated",
	})
}

// ResetPassword handles POST /admin/users/{id}/reset-password
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	newPwd, err := h.Admin.ResetPassword(ctx, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "password reset",
		"new_password": newPwd,
	})
}
