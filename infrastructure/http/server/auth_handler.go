package server

import (
	"log/slog"
	"moonshop/auth"
	"moonshop/domain/account"
	"moonshop/errors"
	"moonshop/services"
	"net/http"
	"time"
)

type AuthHandler struct {
	authService services.IAuthService
	log         *slog.Logger
}

func NewAuthHandler(authService services.IAuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// userResponse is the public profile, the password hash never leaves.
type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
	Token   string       `json:"token"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, token, err := h.authService.Signup(req)
	if err != nil {
		if errors.MapToHTTPStatus(err) == http.StatusInternalServerError {
			h.log.Error("Signup failed", "error", err)
		}
		writeError(w, err)
		return
	}
	h.log.Info("User signed up", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: toUserResponse(user), Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, token, err := h.authService.Login(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: toUserResponse(user), Token: token})
}

func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.authService.GetUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type profileResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// UpdateProfile edits the profile of {id}; only its owner may do so when auth is on.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.EnsureSameUser(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	var req auth.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.authService.UpdateProfile(userID, req)
	if err != nil {
		if errors.MapToHTTPStatus(err) == http.StatusInternalServerError {
			h.log.Error("Profile update failed", "user_id", userID, "error", err)
		}
		writeError(w, err)
		return
	}
	h.log.Info("Profile updated", "user_id", user.ID)
	writeJSON(w, http.StatusOK, profileResponse{Success: true, User: toUserResponse(user)})
}

func toUserResponse(user account.User) userResponse {
	return userResponse{
		ID:        int64(user.ID),
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt,
	}
}
