// Package market implements selling tracks and paying sellers out.
package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trackmarket/core/audio"
	"trackmarket/core/pricing"
	"trackmarket/logger"
	"trackmarket/model"
	"trackmarket/repository"
	"trackmarket/storage"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// EstimateStore keeps uploads between estimation and listing. Take removes
// the estimate atomically so it is redeemed at most once.
type EstimateStore interface {
	Put(ctx context.Context, p *model.PendingUpload) error
	Take(ctx context.Context, id string) (*model.PendingUpload, error)
}

// Scheduler queues a withdrawal for settlement.
type Scheduler interface {
	Schedule(ctx context.Context, id string, due time.Time) error
}

// Notifier delivers a notification to a user. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, userID int64, n model.Notification)
}

// DurationProber measures the real length of an upload.
type DurationProber interface {
	DurationSeconds(ctx context.Context, data []byte) (int, error)
}

type Options struct {
	SettlementDelay time.Duration
	SenderName      string
	MaxUploadBytes  int64
	Prober          DurationProber // optional
}

type Service struct {
	tracks    repository.TrackRepository
	ledger    repository.LedgerRepository
	objects   storage.ObjectStore
	estimates EstimateStore
	scheduler Scheduler
	notifier  Notifier
	pricer    *pricing.Estimator
	opts      Options
	now       func() time.Time
}

func NewService(
	tracks repository.TrackRepository,
	ledger repository.LedgerRepository,
	objects storage.ObjectStore,
	estimates EstimateStore,
	scheduler Scheduler,
	notifier Notifier,
	pricer *pricing.Estimator,
	opts Options,
) *Service {
	if pricer == nil {
		pricer = pricing.New()
	}
	return &Service{
		tracks:    tracks,
		ledger:    ledger,
		objects:   objects,
		estimates: estimates,
		scheduler: scheduler,
		notifier:  notifier,
		pricer:    pricer,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) QuickEstimate() int64 {
	return s.pricer.Quick()
}

func (s *Service) Analyze(fileName string, size int64) (model.Estimate, error) {
	if strings.TrimSpace(fileName) == "" {
		return model.Estimate{}, ErrMissingFileName
	}
	return s.pricer.Analyze(fileName, max(size, 0)), nil
}

func (s *Service) Evaluate(fileName string, size int64) (model.Estimate, error) {
	if strings.TrimSpace(fileName) == "" {
		return model.Estimate{}, ErrMissingFileName
	}
	return s.pricer.Evaluate(fileName, max(size, 0), pricing.Tags{}), nil
}

// UploadAndEstimate checks that data is audio, prices it and parks the file
// under a fresh estimate id so a later Sell does not need the bytes again.
func (s *Service) UploadAndEstimate(ctx context.Context, userID int64, fileName string, data []byte) (*model.Estimate, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, ErrMissingFileName
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	info, err := audio.Inspect(fileName, data)
	if err != nil {
		return nil, err
	}

	est := s.pricer.Evaluate(fileName, int64(len(data)), pricing.Tags{Genre: info.Genre})
	est.ID = uuid.NewString()
	if s.opts.Prober != nil {
		if sec, err := s.opts.Prober.DurationSeconds(ctx, data); err == nil && sec > 0 {
			est.Analysis.Duration = model.FormatDuration(sec)
		} else if err != nil {
			logger.Debug("[Upload] duration probe failed", logger.ErrorField(err))
		}
	}

	key := storage.UploadKey(est.ID, fileName)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), info.MIME); err != nil {
		logger.Warn("[Upload] failed to store audio, estimate kept without file",
			logger.String("estimateId", est.ID), logger.ErrorField(err))
		key = ""
	}

	pending := &model.PendingUpload{
		UserID:    userID,
		Estimate:  est,
		ObjectKey: key,
		Title:     info.Title,
		Artist:    info.Artist,
		MIME:      info.MIME,
	}
	if err := s.estimates.Put(ctx, pending); err != nil {
		return nil, err
	}

	logger.Info("[Upload] track estimated",
		logger.Int64("userId", userID),
		logger.String("estimateId", est.ID),
		logger.String("size", humanize.Bytes(uint64(len(data)))),
		logger.Int64("price", est.EstimatedPrice))
	return &est, nil
}

// SellRequest lists a track. Fields left empty are taken from the estimate
// when EstimateID is set.
type SellRequest struct {
	FileName   string
	Title      string
	Artist     string
	Genre      string
	Price      int64
	AudioData  []byte
	EstimateID string
	Instant    bool
}

// Sell lists a track: the row is created pending, the audio is stored and the
// track becomes active. Storage failures never fail the listing. With Instant
// the track is sold right away.
func (s *Service) Sell(ctx context.Context, userID int64, req SellRequest) (*model.Track, error) {
	var pending *model.PendingUpload
	if req.EstimateID != "" {
		p, err := s.estimates.Take(ctx, req.EstimateID)
		if err != nil {
			return nil, err
		}
		if p.UserID != userID {
			s.restoreEstimate(ctx, p)
			return nil, ErrEstimateNotFound
		}
		pending = p
		req = mergeEstimate(req, p)
	}

	track, err := s.createListing(ctx, userID, req, pending)
	if err != nil {
		if pending != nil {
			s.restoreEstimate(ctx, pending)
		}
		return nil, err
	}

	key := s.storeAudio(ctx, track, req.AudioData, pending)
	if key == "" {
		err = s.tracks.UpdateTrackStatus(ctx, track.ID, model.TrackStatusActive)
	} else {
		track.ObjectKey = key
		track.CDNURL = s.objects.URL(key)
		err = s.tracks.AttachObject(ctx, track.ID, key, track.CDNURL, model.TrackStatusActive)
	}
	if err != nil {
		return nil, err
	}
	track.Status = model.TrackStatusActive

	logger.Info("[Sell] track listed",
		logger.String("trackId", track.ID),
		logger.Int64("userId", userID),
		logger.Int64("price", track.Price),
		logger.Bool("stored", key != ""))
	s.notifier.Notify(ctx, userID, model.Notification{
		Kind:        model.NotifyTrackListed,
		Title:       "Track listed",
		Description: fmt.Sprintf("Track %q is listed for %s ₽", track.Title, humanize.Comma(track.Price)),
		Amount:      track.Price,
		RefID:       track.ID,
		CreatedAt:   track.CreatedAt,
	})

	if req.Instant {
		if _, err := s.sell(ctx, track); err != nil {
			return nil, err
		}
	}
	return track, nil
}

// createListing validates req and inserts the track as pending.
func (s *Service) createListing(ctx context.Context, userID int64, req SellRequest, pending *model.PendingUpload) (*model.Track, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, ErrMissingFileName
	}
	if req.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	now := s.now()
	track := &model.Track{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     firstNonEmpty(req.Title, pricing.TitleFromFileName(req.FileName)),
		Artist:    req.Artist,
		Genre:     firstNonEmpty(req.Genre, "Unknown"),
		FileName:  req.FileName,
		FileSize:  int64(len(req.AudioData)),
		Price:     req.Price,
		Status:    model.TrackStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pending != nil {
		if len(req.AudioData) == 0 {
			track.FileSize = pending.Estimate.FileSize
		}
		track.DurationSec = pricing.ParseDuration(pending.Estimate.Analysis.Duration)
	}

	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		return nil, err
	}
	return track, nil
}

// restoreEstimate puts back an estimate that was taken but not redeemed.
func (s *Service) restoreEstimate(ctx context.Context, p *model.PendingUpload) {
	if err := s.estimates.Put(ctx, p); err != nil {
		logger.Warn("[Sell] failed to restore estimate", logger.String("estimateId", p.Estimate.ID), logger.ErrorField(err))
	}
}

// storeAudio returns the object key the track ended up under, or "" when
// there is no audio or storing it failed. A parked upload is never left behind
// once its estimate is redeemed, unless moving it failed.
func (s *Service) storeAudio(ctx context.Context, track *model.Track, data []byte, pending *model.PendingUpload) string {
	key := storage.TrackKey(track.ID, track.FileName)

	switch {
	case len(data) > 0:
		// audio sent with the request wins over the parked upload
		if pending != nil {
			defer s.dropUpload(ctx, pending)
		}
		if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "audio/mpeg"); err != nil {
			logger.Warn("[Sell] audio upload failed, listing without file",
				logger.String("trackId", track.ID), logger.ErrorField(err))
			return ""
		}
	case pending != nil && pending.ObjectKey != "":
		if err := s.objects.Copy(ctx, pending.ObjectKey, key); err != nil {
			logger.Warn("[Sell] failed to move uploaded audio, listing without file",
				logger.String("trackId", track.ID), logger.ErrorField(err))
			return ""
		}
		s.dropUpload(ctx, pending)
	default:
		return ""
	}
	return key
}

func (s *Service) dropUpload(ctx context.Context, pending *model.PendingUpload) {
	if pending.ObjectKey == "" {
		return
	}
	if err := s.objects.Remove(ctx, pending.ObjectKey); err != nil {
		logger.Warn("[Sell] failed to remove upload", logger.String("key", pending.ObjectKey), logger.ErrorField(err))
	}
}

func mergeEstimate(req SellRequest, p *model.PendingUpload) SellRequest {
	req.FileName = firstNonEmpty(req.FileName, p.Estimate.FileName)
	req.Title = firstNonEmpty(req.Title, p.Title)
	req.Artist = firstNonEmpty(req.Artist, p.Artist)
	req.Genre = firstNonEmpty(req.Genre, p.Estimate.Analysis.Genre)
	if req.Price == 0 {
		req.Price = p.Estimate.EstimatedPrice
	}
	return req
}

// Purchase sells one of the user's active tracks to a simulated buyer.
func (s *Service) Purchase(ctx context.Context, userID int64, trackID string) (*model.Track, *model.Transaction, error) {
	track, err := s.GetTrack(ctx, userID, trackID)
	if err != nil {
		return nil, nil, err
	}
	if track.Status != model.TrackStatusActive {
		return nil, nil, ErrTrackNotActive
	}
	txn, err := s.sell(ctx, track)
	if err != nil {
		return nil, nil, err
	}
	return track, txn, nil
}

func (s *Service) sell(ctx context.Context, track *model.Track) (*model.Transaction, error) {
	now := s.now()
	txn := &model.Transaction{
		ID:          "txn_" + uuid.NewString(),
		UserID:      track.UserID,
		Type:        model.TransactionSale,
		Amount:      track.Price,
		Status:      model.TransactionCompleted,
		Description: fmt.Sprintf("Sale of %q", track.Title),
		TrackID:     track.ID,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := s.ledger.RecordSale(ctx, track.ID, txn); err != nil {
		return nil, err
	}
	track.Status = model.TrackStatusSold
	track.SoldAt = &now
	track.UpdatedAt = now

	logger.Info("[Sell] track sold",
		logger.String("trackId", track.ID),
		logger.String("transactionId", txn.ID),
		logger.Int64("amount", txn.Amount))
	s.notifier.Notify(ctx, track.UserID, model.Notification{
		Kind:        model.NotifySale,
		Title:       "New sale!",
		Description: fmt.Sprintf("Your track %q sold for %s ₽", track.Title, humanize.Comma(track.Price)),
		Amount:      track.Price,
		RefID:       txn.ID,
		CreatedAt:   now,
	})
	return txn, nil
}

type WithdrawRequest struct {
	Amount  int64
	Method  string
	Bank    string
	Account string
}

// Withdraw debits the balance right away and queues the payout. The
// transaction stays pending until the settlement worker completes it.
func (s *Service) Withdraw(ctx context.Context, userID int64, req WithdrawRequest) (*model.WithdrawalReceipt, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	bank := strings.TrimSpace(req.Bank)
	account := strings.TrimSpace(req.Account)
	if bank == "" || account == "" {
		return nil, ErrMissingRequisites
	}

	method := model.NormalizeMethod(req.Method)
	bankName := model.BankDisplayName(bank)
	methodName := model.MethodDisplayName(method)

	now := s.now()
	txn := &model.Transaction{
		ID:          "txn_" + uuid.NewString(),
		UserID:      userID,
		Type:        model.TransactionWithdrawal,
		Amount:      req.Amount,
		Status:      model.TransactionPending,
		Description: fmt.Sprintf("Withdrawal to %s (%s)", methodName, bankName),
		Method:      method,
		Bank:        bankName,
		Account:     account,
		CreatedAt:   now,
	}
	if err := s.ledger.CreateWithdrawal(ctx, txn); err != nil {
		return nil, err
	}

	// a lost schedule is recovered by the worker on its next start
	if err := s.scheduler.Schedule(ctx, txn.ID, now.Add(s.opts.SettlementDelay)); err != nil {
		logger.Error("[Withdraw] failed to schedule settlement",
			logger.String("transactionId", txn.ID), logger.ErrorField(err))
	}

	seconds := int(s.opts.SettlementDelay / time.Second)
	amount := humanize.Comma(req.Amount)
	logger.Info("[Withdraw] withdrawal accepted",
		logger.String("transactionId", txn.ID),
		logger.Int64("userId", userID),
		logger.Int64("amount", req.Amount),
		logger.String("bank", bankName))
	s.notifier.Notify(ctx, userID, model.Notification{
		Kind:        model.NotifyWithdrawalPending,
		Title:       "Withdrawal is being processed",
		Description: fmt.Sprintf("%s ₽ will arrive in %d seconds", amount, seconds),
		Amount:      req.Amount,
		RefID:       txn.ID,
		CreatedAt:   now,
	})

	return &model.WithdrawalReceipt{
		TransactionID: txn.ID,
		Amount:        req.Amount,
		Status:        model.TransactionPending,
		Bank:          bankName,
		Method:        methodName,
		Account:       account,
		Sender:        s.opts.SenderName,
		EstimatedTime: seconds,
		CreatedAt:     now,
		Message: fmt.Sprintf("Transfer of %s ₽ to %s (%s) is being processed. The money will arrive in %d seconds.",
			amount, methodName, bankName, seconds),
	}, nil
}

func (s *Service) Balance(ctx context.Context, userID int64) (*model.Balance, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.ledger.Balance(ctx, userID, monthStart)
}

// History is the transaction list with totals of completed sales and of
// withdrawals that did not fail.
type History struct {
	Transactions     []*model.Transaction `json:"transactions"`
	TotalSales       int64                `json:"totalSales"`
	TotalWithdrawals int64                `json:"totalWithdrawals"`
}

func (s *Service) History(ctx context.Context, userID int64, typ model.TransactionType) (*History, error) {
	switch typ {
	case "", model.TransactionSale, model.TransactionWithdrawal:
	default:
		return nil, ErrInvalidType
	}
	txns, err := s.ledger.ListTransactions(ctx, userID, typ)
	if err != nil {
		return nil, err
	}

	h := &History{Transactions: txns}
	for _, t := range txns {
		switch {
		case t.Type == model.TransactionSale && t.Status == model.TransactionCompleted:
			h.TotalSales += t.Amount
		case t.Type == model.TransactionWithdrawal && t.Status != model.TransactionFailed:
			h.TotalWithdrawals += t.Amount
		}
	}
	return h, nil
}

// TrackListing is one status tab of a catalogue search, with the counts of
// every tab for the same search.
type TrackListing struct {
	Tracks []*model.Track
	Counts model.TrackSummary
}

func (s *Service) ListTracks(ctx context.Context, userID int64, status model.TrackStatus, q string) (*TrackListing, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	all, err := s.tracks.ListTracksByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	found := Search(all, q)
	return &TrackListing{
		Tracks: FilterByStatus(found, status),
		Counts: Summarize(found),
	}, nil
}

func (s *Service) Summary(ctx context.Context, userID int64) (model.TrackSummary, error) {
	tracks, err := s.tracks.ListTracksByUserID(ctx, userID)
	if err != nil {
		return model.TrackSummary{}, err
	}
	return Summarize(tracks), nil
}

// GetTrack hides other users' tracks behind ErrTrackNotFound.
func (s *Service) GetTrack(ctx context.Context, userID int64, id string) (*model.Track, error) {
	track, err := s.tracks.GetTrackByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	if track.UserID != userID {
		return nil, ErrTrackNotFound
	}
	return track, nil
}

// OpenAudio opens the stored file of one of the user's tracks. The caller
// closes the object.
func (s *Service) OpenAudio(ctx context.Context, userID int64, trackID string) (*model.Track, *storage.Object, error) {
	track, err := s.GetTrack(ctx, userID, trackID)
	if err != nil {
		return nil, nil, err
	}
	if track.ObjectKey == "" {
		return nil, nil, ErrAudioNotStored
	}
	obj, err := s.objects.Open(ctx, track.ObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, ErrAudioNotStored
	}
	if err != nil {
		return nil, nil, err
	}
	return track, obj, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
