package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"trackmarket/core/market"
	"trackmarket/logger"
	"trackmarket/model"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

type fileRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// SellRequest is the body of POST /api/tracks/sell. AudioData is base64,
// optionally with a data: URL prefix.
type SellRequest struct {
	FileName   string `json:"fileName"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Genre      string `json:"genre"`
	Price      int64  `json:"price"`
	AudioData  string `json:"audioData"`
	EstimateID string `json:"estimateId"`
	Instant    bool   `json:"instant"`
}

func decodeAudio(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

// QuickEstimateHandler GET /api/tracks/quick-estimate
func (h *APIHandler) QuickEstimateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"estimatedPrice": h.market.QuickEstimate(),
		"currency":       "RUB",
	})
}

// AnalyzeTrackHandler POST /api/tracks/analyze
func (h *APIHandler) AnalyzeTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decodeJSON(w, r, "[Analyze]", &req) {
		return
	}
	est, err := h.market.Analyze(req.FileName, req.FileSize)
	if err != nil {
		writeError(w, "[Analyze]", err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// EvaluateTrackHandler POST /api/tracks/evaluate
func (h *APIHandler) EvaluateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decodeJSON(w, r, "[Evaluate]", &req) {
		return
	}
	est, err := h.market.Evaluate(req.FileName, req.FileSize)
	if err != nil {
		writeError(w, "[Evaluate]", err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// UploadTrackHandler POST /api/tracks/upload, multipart field "file".
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	maxBytes := h.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20) // room for the multipart envelope
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File is larger than %s", humanize.IBytes(uint64(maxBytes))))
			return
		}
		writeMessage(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing 'file' in form")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	est, err := h.market.UploadAndEstimate(r.Context(), userID, header.Filename, data)
	if err != nil {
		writeError(w, "[Upload]", err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// SellTrackHandler POST /api/tracks/sell
func (h *APIHandler) SellTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadMB<<21) // base64 inflates the payload
	var req SellRequest
	if !decodeJSON(w, r, "[Sell]", &req) {
		return
	}
	audioData, err := decodeAudio(req.AudioData)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "audioData is not valid base64")
		return
	}

	track, err := h.market.Sell(r.Context(), userID, market.SellRequest{
		FileName:   req.FileName,
		Title:      req.Title,
		Artist:     req.Artist,
		Genre:      req.Genre,
		Price:      req.Price,
		AudioData:  audioData,
		EstimateID: req.EstimateID,
		Instant:    req.Instant,
	})
	if err != nil {
		writeError(w, "[Sell]", err)
		return
	}

	msg := fmt.Sprintf("Track %q is listed for %s ₽", track.FileName, humanize.Comma(track.Price))
	if track.Status == model.TrackStatusSold {
		msg = fmt.Sprintf("Track %q sold, +%s ₽ to your balance", track.FileName, humanize.Comma(track.Price))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trackId":  track.ID,
		"fileName": track.FileName,
		"price":    track.Price,
		"status":   track.Status,
		"cdnUrl":   nullable(track.CDNURL),
		"track":    track.View(),
		"message":  msg,
	})
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetTracksHandler GET /api/tracks?status=&q=
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	listing, err := h.market.ListTracks(r.Context(), userID, model.TrackStatus(q.Get("status")), q.Get("q"))
	if err != nil {
		writeError(w, "[Tracks]", err)
		return
	}

	views := make([]model.TrackView, 0, len(listing.Tracks))
	for _, t := range listing.Tracks {
		views = append(views, t.View())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": views, "counts": listing.Counts})
}

// TrackSummaryHandler GET /api/tracks/summary
func (h *APIHandler) TrackSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	summary, err := h.market.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, "[Tracks]", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTrackHandler GET /api/tracks/{id}
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	track, err := h.market.GetTrack(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "[Tracks]", err)
		return
	}
	writeJSON(w, http.StatusOK, track.View())
}

// TrackAudioHandler GET /api/tracks/{id}/audio 播放已上传的音频, with Range support.
func (h *APIHandler) TrackAudioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	track, obj, err := h.market.OpenAudio(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "[Audio]", err)
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, track.FileName, obj.ModTime, obj)
}

// PurchaseTrackHandler POST /api/tracks/{id}/purchase
func (h *APIHandler) PurchaseTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	track, txn, err := h.market.Purchase(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "[Purchase]", err)
		return
	}

	logger.Info("[Purchase] simulated sale", logger.String("trackId", track.ID), logger.Int64("userId", userID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"track":       track.View(),
		"transaction": txn,
		"message":     fmt.Sprintf("Your track %q sold for %s ₽", track.Title, humanize.Comma(track.Price)),
	})
}
