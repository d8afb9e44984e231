package server

import (
	"net/http"
	"strings"

	"trackmarket/logger"
	"trackmarket/repository"
)

// ProfileRequest is the body of PUT /api/profile.
type ProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Bio       string `json:"bio"`
}

// GetUserProfileHandler 获取用户资料
func (h *APIHandler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	user, err := h.userRepo.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, "[Profile]", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUserProfileHandler 更新用户资料
func (h *APIHandler) UpdateUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if !decodeJSON(w, r, "[Profile]", &req) {
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.Email) == "" {
		writeMessage(w, http.StatusBadRequest, "First name and email are required")
		return
	}

	user, err := h.userRepo.UpdateProfile(r.Context(), userID, repository.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Bio:       req.Bio,
	})
	if err != nil {
		writeError(w, "[Profile]", err)
		return
	}

	logger.Info("[Profile] 资料已更新", logger.Int64("userId", userID))
	writeJSON(w, http.StatusOK, user)
}
