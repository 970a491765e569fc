package handlers

import (
	"context"
	"net/http"
	"time"

	"student_records/backend/internal/auth"
	"student_records/backend/internal/gateway/util"
)

// AuthHandler serves login, logout and session routes.
type AuthHandler struct {
	Auth *auth.AuthService
}

// RESTLoginRequest mirrors the expected JSON input for /auth/login
type RESTLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RESTChangePasswordRequest mirrors the expected JSON input for /auth/change-password
type RESTChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,nefield=OldPassword"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.Auth.Login)
}

// AdminLogin handles POST /admin/auth/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.Auth.AdminLogin)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, email, password string) (*auth.LoginResult, error)) {
	var reqBody RESTLoginRequest
	if !util.DecodeAndValidate(w, r, &reqBody) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := fn(ctx, reqBody.Email, reqBody.Password)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"user":       res.User,
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := util.ExtractToken(r)
	if err != nil {
		// logout without a token is treated as already logged out
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Logged out (no session token provided)",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	revoked, err := h.Auth.Logout(ctx, token)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	message := "logout successful"
	if !revoked {
		message = "session already expired or invalid"
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// ValidateToken handles GET /auth/validate
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token, err := util.ExtractToken(r)
	if err != nil {
		util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token missing or invalid format")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	principal, user, err := h.Auth.ValidateToken(ctx, token)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"valid":   true,
		"scope":   principal.Scope,
		"user":    user,
		"message": "Token is valid",
	})
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := util.PrincipalFrom(r)
	if !ok {
		util.WriteJSONError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var reqBody RESTChangePasswordRequest
	if !util.DecodeAndValidate(w, r, &reqBody) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, principal.UserID, reqBody.OldPassword, reqBody.NewPassword); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "password changed successfully",
	})
}
