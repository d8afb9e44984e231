package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"trackmarket/core/auth"
	"trackmarket/logger"
	"trackmarket/model"
	"trackmarket/repository"
)

type contextKey string

const userIDKey contextKey = "userID"

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

const minPasswordLen = 6

// RegisterHandler handles user registration requests
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, "[Register]", &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	if req.Email == "" || !strings.Contains(req.Email, "@") || req.FirstName == "" {
		writeMessage(w, http.StatusBadRequest, "Email and first name are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "[Register]", err)
		return
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     strings.TrimSpace(req.LastName),
	}
	if err := h.userRepo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			logger.Warn("[Register] 邮箱已存在", logger.String("email", req.Email))
		}
		writeError(w, "[Register]", err)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		writeError(w, "[Register]", err)
		return
	}

	logger.Info("[Register] 注册成功", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// LoginHandler handles user login requests
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, "[Login]", &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.userRepo.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("[Login] 用户不存在", logger.String("email", req.Email))
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		writeError(w, "[Login]", err)
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 密码验证失败", logger.String("email", req.Email))
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		writeError(w, "[Login]", err)
		return
	}

	logger.Info("[Login] 登录成功", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// AuthMiddleware checks the Bearer token and puts the user id in the context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeMessage(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeMessage(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := h.tokens.ParseToken(parts[1])
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// mustUserID writes 401 when the context has no user.
func mustUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}
