package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"trackmarket/config"
	"trackmarket/core/audio"
	"trackmarket/core/auth"
	"trackmarket/core/market"
	"trackmarket/core/notify"
	"trackmarket/logger"
	"trackmarket/repository"
)

// APIHandler holds the dependencies shared by all HTTP handlers.
type APIHandler struct {
	market   *market.Service
	userRepo repository.UserRepository
	tokens   *auth.TokenIssuer
	hub      *notify.Hub
	cfg      *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	svc *market.Service,
	userRepo repository.UserRepository,
	tokens *auth.TokenIssuer,
	hub *notify.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		market:   svc,
		userRepo: userRepo,
		tokens:   tokens,
		hub:      hub,
		cfg:      cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrMissingRequisites),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrMissingFileName),
		errors.Is(err, market.ErrInvalidStatus),
		errors.Is(err, market.ErrInvalidType):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, market.ErrTrackNotFound),
		errors.Is(err, market.ErrEstimateNotFound),
		errors.Is(err, market.ErrAudioNotStored),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInsufficientFunds),
		errors.Is(err, market.ErrTrackNotActive),
		errors.Is(err, repository.ErrDuplicateUser):
		return http.StatusConflict
	case errors.Is(err, market.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, audio.ErrNotAudio):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"error": ...}. Internal errors are logged and
// hidden from the client.
func writeError(w http.ResponseWriter, tag string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(tag+" request failed", logger.ErrorField(err))
		writeMessage(w, status, "Internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, tag string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Warn(tag+" 解析请求体失败", logger.ErrorField(err))
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
