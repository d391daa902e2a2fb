package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/http/respond"
	"github.com/hongminglow/ondata-be/internal/middleware"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/models/dto"
	"github.com/hongminglow/ondata-be/internal/service"
)

// APIPrefix is the common path prefix of every API route.
const APIPrefix = "/api"

// AuthHandler owns the account endpoints.
type AuthHandler struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+APIPrefix+"/register", h.handleRegister)
	mux.HandleFunc("POST "+APIPrefix+"/login", h.handleLogin)
	mux.HandleFunc("POST "+APIPrefix+"/reset-password", h.handleResetPassword)
	mux.HandleFunc("GET "+APIPrefix+"/me", middleware.RequireAuth(h.svc, h.handleMe))
	mux.HandleFunc("PUT "+APIPrefix+"/update", middleware.RequireAuth(h.svc, h.handleUpdate))
	mux.HandleFunc("POST "+APIPrefix+"/verify-user", middleware.RequireAuth(h.svc, h.handleVerifyUser))
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.Role); err != nil {
		respondServiceError(w, h.logger, err, "failed to create user")
		return
	}
	respond.Message(w, http.StatusCreated, "user registered")
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to login")
		return
	}
	respond.JSON(w, http.StatusOK, dto.LoginResponse{Token: token})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	profile, err := h.svc.Profile(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to fetch user")
		return
	}
	respond.JSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := auth.FromContext(r.Context())
	err := h.svc.UpdateProfile(r.Context(), caller.UserID, models.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to update user")
		return
	}
	respond.Message(w, http.StatusOK, "user updated")
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		respondServiceError(w, h.logger, err, "failed to reset password")
		return
	}
	respond.Message(w, http.StatusOK, "password reset")
}

func (h *AuthHandler) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.svc.VerifyUsername(r.Context(), req.Username)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to verify user")
		return
	}
	respond.JSON(w, http.StatusOK, dto.VerifyUserResponse{UserID: id})
}
