package market

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"trackmarket/model"
	"trackmarket/repository"
	"trackmarket/storage"
)

type stubTrackRepo struct {
	mu     sync.Mutex
	tracks map[string]*model.Track
	order  []string
}

func newStubTrackRepo(tracks ...*model.Track) *stubTrackRepo {
	r := &stubTrackRepo{tracks: map[string]*model.Track{}}
	for _, t := range tracks {
		r.tracks[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	return r
}

func (r *stubTrackRepo) CreateTrack(ctx context.Context, t *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tracks[t.ID] = &cp
	r.order = append(r.order, t.ID)
	return nil
}

func (r *stubTrackRepo) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *stubTrackRepo) ListTracksByUserID(ctx context.Context, userID int64) ([]*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Track
	for _, id := range r.order {
		if t := r.tracks[id]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *stubTrackRepo) UpdateTrackStatus(ctx context.Context, id string, status model.TrackStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	return nil
}

func (r *stubTrackRepo) AttachObject(ctx context.Context, id, key, cdnURL string, status model.TrackStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.ObjectKey, t.CDNURL, t.Status = key, cdnURL, status
	return nil
}

// stubLedger shares the track map so RecordSale can flip statuses.
type stubLedger struct {
	mu        sync.Mutex
	tracks    *stubTrackRepo
	available map[int64]int64
	txns      []*model.Transaction
}

func newStubLedger(tracks *stubTrackRepo) *stubLedger {
	return &stubLedger{tracks: tracks, available: map[int64]int64{}}
}

func (l *stubLedger) Balance(ctx context.Context, userID int64, monthStart time.Time) (*model.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &model.Balance{UserID: userID, Available: l.available[userID]}, nil
}

func (l *stubLedger) CreateWithdrawal(ctx context.Context, txn *model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if txn.Amount > l.available[txn.UserID] {
		return repository.ErrInsufficientFunds
	}
	l.available[txn.UserID] -= txn.Amount
	l.txns = append(l.txns, txn)
	return nil
}

func (l *stubLedger) RecordSale(ctx context.Context, trackID string, txn *model.Transaction) error {
	l.tracks.mu.Lock()
	t, ok := l.tracks.tracks[trackID]
	if !ok || t.Status != model.TrackStatusActive {
		l.tracks.mu.Unlock()
		return repository.ErrTrackNotActive
	}
	t.Status = model.TrackStatusSold
	l.tracks.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.available[txn.UserID] += txn.Amount
	l.txns = append(l.txns, txn)
	return nil
}

func (l *stubLedger) CompleteTransaction(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, errors.New("not used")
}

func (l *stubLedger) FailWithdrawal(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, errors.New("not used")
}

func (l *stubLedger) IncrementAttempts(ctx context.Context, id string) (int, error) {
	return 0, errors.New("not used")
}

func (l *stubLedger) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return nil, repository.ErrNotFound
}

func (l *stubLedger) ListTransactions(ctx context.Context, userID int64, typ model.TransactionType) ([]*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.Transaction
	for i := len(l.txns) - 1; i >= 0; i-- {
		t := l.txns[i]
		if t.UserID == userID && (typ == "" || t.Type == typ) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *stubLedger) ListPendingWithdrawals(ctx context.Context) ([]*model.Transaction, error) {
	return nil, nil
}

type stubObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newStubObjects() *stubObjects {
	return &stubObjects{objects: map[string][]byte{}}
}

func (o *stubObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if o.putErr != nil {
		return o.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *stubObjects) Copy(ctx context.Context, src, dst string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[src]
	if !ok {
		return errors.New("no such key")
	}
	o.objects[dst] = data
	return nil
}

func (o *stubObjects) Remove(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *stubObjects) Open(ctx context.Context, key string) (*storage.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{
		ReadSeekCloser: nopSeekCloser{bytes.NewReader(data)},
		Size:           int64(len(data)),
		ContentType:    "audio/mpeg",
	}, nil
}

type nopSeekCloser struct{ io.ReadSeeker }

func (nopSeekCloser) Close() error { return nil }

func (o *stubObjects) URL(key string) string {
	return "https://cdn.test/" + key
}

type stubEstimates struct {
	mu    sync.Mutex
	items map[string]*model.PendingUpload
}

func (e *stubEstimates) Put(ctx context.Context, p *model.PendingUpload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.items == nil {
		e.items = map[string]*model.PendingUpload{}
	}
	e.items[p.Estimate.ID] = p
	return nil
}

func (e *stubEstimates) Take(ctx context.Context, id string) (*model.PendingUpload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.items[id]
	if !ok {
		return nil, ErrEstimateNotFound
	}
	delete(e.items, id)
	return p, nil
}

func (e *stubEstimates) has(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.items[id]
	return ok
}

type stubScheduler struct {
	mu  sync.Mutex
	due map[string]time.Time
}

func (s *stubScheduler) Schedule(ctx context.Context, id string, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.due == nil {
		s.due = map[string]time.Time{}
	}
	s.due[id] = due
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, userID int64, note model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}
