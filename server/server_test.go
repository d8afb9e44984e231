package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trackmarket/config"
	"trackmarket/core/auth"
	"trackmarket/core/market"
	"trackmarket/core/notify"
	"trackmarket/core/pricing"
	"trackmarket/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router http.Handler
	store  *memStore
	tokens *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	cfg := &config.Config{MaxUploadMB: 1, SenderName: "Низоленко Артём"}
	hub := notify.NewHub(nil)
	svc := market.NewService(
		trackRepo{store},
		ledgerRepo{memStore: store},
		&memObjects{data: map[string][]byte{}},
		estimateStore{store},
		nopScheduler{},
		hub,
		pricing.New(),
		market.Options{SettlementDelay: 30 * time.Second, SenderName: cfg.SenderName, MaxUploadBytes: cfg.MaxUploadMB << 20},
	)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	return &testEnv{
		router: NewRouter(NewAPIHandler(svc, store, tokens, hub, cfg)),
		store:  store,
		tokens: tokens,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// register creates a user and returns its token.
func (e *testEnv) register(t *testing.T, email string) (string, int64) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email: email, Password: "secret123", FirstName: "Артём", LastName: "Низоленко",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token, resp.User.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func TestHealthAndCORS(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = e.do(t, http.MethodOptions, "/api/withdraw", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "artem@example.com")

	rec := e.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email: "ARTEM@example.com", Password: "secret123", FirstName: "A",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{Email: "x@example.com", Password: "123", FirstName: "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "artem@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "artem@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	claims, err := e.tokens.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "artem@example.com", claims.Email)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/balance", "/api/tracks", "/api/transactions", "/api/profile", "/api/notifications"} {
		rec := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := e.do(t, http.MethodGet, "/api/balance", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/ws/notifications?token=bad", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithdrawFlow(t *testing.T) {
	e := newTestEnv(t)
	token, userID := e.register(t, "artem@example.com")
	e.store.available[userID] = 45000

	rec := e.do(t, http.MethodPost, "/api/withdraw", token, WithdrawRequest{Amount: 0, Bank: "sber", Account: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, market.ErrInvalidAmount.Error(), errorOf(t, rec))

	rec = e.do(t, http.MethodPost, "/api/withdraw", token, WithdrawRequest{Amount: 100, Bank: "sber"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, market.ErrMissingRequisites.Error(), errorOf(t, rec))

	rec = e.do(t, http.MethodPost, "/api/withdraw", token, `{"amount": 10.5, "bank": "sber", "account": "1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/withdraw", token, WithdrawRequest{Amount: 100000, Bank: "sber", Account: "1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/withdraw", token, WithdrawRequest{Amount: 10000, Method: "card", Bank: "tinkoff", Account: "2200 0000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt model.WithdrawalReceipt
	decode(t, rec, &receipt)
	assert.Equal(t, "Т-Банк", receipt.Bank)
	assert.Equal(t, "card number", receipt.Method)
	assert.Equal(t, "Низоленко Артём", receipt.Sender)
	assert.Equal(t, 30, receipt.EstimatedTime)

	rec = e.do(t, http.MethodGet, "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance model.Balance
	decode(t, rec, &balance)
	assert.Equal(t, int64(35000), balance.Available)
	assert.Equal(t, int64(10000), balance.Pending)

	rec = e.do(t, http.MethodGet, "/api/transactions?type=withdrawal", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history market.History
	decode(t, rec, &history)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, model.TransactionPending, history.Transactions[0].Status)

	rec = e.do(t, http.MethodGet, "/api/transactions?type=bonus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSellAndPurchase(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "artem@example.com")
	other, _ := e.register(t, "other@example.com")

	rec := e.do(t, http.MethodPost, "/api/tracks/sell", token, SellRequest{
		FileName:  "Midnight Dreams.mp3",
		Genre:     "Electronic",
		Price:     15000,
		AudioData: base64.StdEncoding.EncodeToString([]byte("fake mp3 bytes")),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sold struct {
		TrackID string            `json:"trackId"`
		Status  model.TrackStatus `json:"status"`
		CDNURL  *string           `json:"cdnUrl"`
		Message string            `json:"message"`
	}
	decode(t, rec, &sold)
	assert.Equal(t, model.TrackStatusActive, sold.Status)
	require.NotNil(t, sold.CDNURL)
	assert.Contains(t, *sold.CDNURL, "tracks/"+sold.TrackID+"/")
	assert.Contains(t, sold.Message, "15,000 ₽")

	rec = e.do(t, http.MethodPost, "/api/tracks/sell", token, SellRequest{FileName: "x.mp3", Price: 100, AudioData: "%%%"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tracks?status=active&q=midnight", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Tracks []model.TrackView  `json:"tracks"`
		Counts model.TrackSummary `json:"counts"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Tracks, 1)
	assert.Equal(t, "Midnight Dreams", list.Tracks[0].Title)
	assert.Equal(t, 1, list.Counts.Active)

	rec = e.do(t, http.MethodGet, "/api/tracks/"+sold.TrackID+"/audio", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "fake mp3 bytes", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/tracks/"+sold.TrackID+"/audio", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Range", "bytes=0-3")
	ranged := httptest.NewRecorder()
	e.router.ServeHTTP(ranged, req)
	assert.Equal(t, http.StatusPartialContent, ranged.Code)
	assert.Equal(t, "fake", ranged.Body.String())

	rec = e.do(t, http.MethodGet, "/api/tracks/"+sold.TrackID+"/audio", other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tracks/"+sold.TrackID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/tracks/"+sold.TrackID+"/purchase", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/tracks/"+sold.TrackID+"/purchase", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tracks/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary model.TrackSummary
	decode(t, rec, &summary)
	assert.Equal(t, model.TrackSummary{Total: 1, Sold: 1, AveragePrice: 15000}, summary)

	rec = e.do(t, http.MethodGet, "/api/balance", token, nil)
	var balance model.Balance
	decode(t, rec, &balance)
	assert.Equal(t, int64(15000), balance.Available)
	assert.Equal(t, int64(15000), balance.EarnedTotal)
}

func TestUploadRejectsNonAudio(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "artem@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "song.mp3")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("plain text pretending to be a song"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tracks/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestEstimateEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/tracks/quick-estimate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quick struct {
		EstimatedPrice int64 `json:"estimatedPrice"`
	}
	decode(t, rec, &quick)
	assert.True(t, quick.EstimatedPrice >= 1000 && quick.EstimatedPrice <= 4999)

	rec = e.do(t, http.MethodPost, "/api/tracks/analyze", "", map[string]interface{}{"fileName": "a.wav", "fileSize": 12 << 20})
	require.Equal(t, http.StatusOK, rec.Code)
	var est model.Estimate
	decode(t, rec, &est)
	assert.Equal(t, "RUB", est.Currency)
	assert.Zero(t, est.EstimatedPrice%1000)

	rec = e.do(t, http.MethodPost, "/api/tracks/evaluate", "", map[string]interface{}{"fileSize": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "artem@example.com")

	rec := e.do(t, http.MethodPut, "/api/profile", token, ProfileRequest{FirstName: " ", Email: "a@b.c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/profile", token, ProfileRequest{FirstName: "Artem", Email: "artem@example.com", Bio: "producer"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user model.User
	decode(t, rec, &user)
	assert.Equal(t, "Artem", user.FirstName)
	assert.Equal(t, "producer", user.Bio)
	assert.Empty(t, user.PasswordHash)

	rec = e.do(t, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
