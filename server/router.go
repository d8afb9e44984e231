package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter 使用 gorilla/mux 创建路由器. CORS wraps the whole router because
// mux skips middleware for preflight requests that match no route method.
func NewRouter(h *APIHandler) http.Handler {
	router := mux.NewRouter()
	router.Use(accessLogMiddleware)

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)

	// 估价, 不需要登录
	router.HandleFunc("/api/tracks/quick-estimate", h.QuickEstimateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/analyze", h.AnalyzeTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/evaluate", h.EvaluateTrackHandler).Methods(http.MethodPost)

	// 曲目
	router.HandleFunc("/api/tracks/upload", h.AuthMiddleware(h.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/sell", h.AuthMiddleware(h.SellTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/summary", h.AuthMiddleware(h.TrackSummaryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", h.AuthMiddleware(h.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", h.AuthMiddleware(h.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/purchase", h.AuthMiddleware(h.PurchaseTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/audio", h.AuthMiddleware(h.TrackAudioHandler)).Methods(http.MethodGet, http.MethodHead)

	// 余额与提现
	router.HandleFunc("/api/balance", h.AuthMiddleware(h.BalanceHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/withdraw", h.AuthMiddleware(h.WithdrawHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/transactions", h.AuthMiddleware(h.TransactionsHandler)).Methods(http.MethodGet)

	// 用户资料
	router.HandleFunc("/api/profile", h.AuthMiddleware(h.GetUserProfileHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/profile", h.AuthMiddleware(h.UpdateUserProfileHandler)).Methods(http.MethodPut)

	// 通知
	router.HandleFunc("/api/notifications", h.AuthMiddleware(h.NotificationsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/ws/notifications", h.NotificationSocketHandler)

	// Frontend UI serving
	if h.cfg.WebAppDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(h.cfg.WebAppDir)))
	}
	return corsMiddleware(router)
}
