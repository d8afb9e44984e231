package server

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"trackmarket/cache"
	"trackmarket/model"
	"trackmarket/repository"
	"trackmarket/storage"
)

// memStore backs every repository interface the handlers touch.
type memStore struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	nextID    int64
	tracks    map[string]*model.Track
	txns      []*model.Transaction
	available map[int64]int64
	estimates map[string]*model.PendingUpload
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int64]*model.User{},
		tracks:    map[string]*model.Track{},
		available: map[int64]int64{},
		estimates: map[string]*model.PendingUpload{},
	}
}

// users

func (m *memStore) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateUser
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.Email = strings.ToLower(u.Email)
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) UpdateProfile(ctx context.Context, id int64, upd repository.ProfileUpdate) (*model.User, error) {
	m.mu.Lock()
	u, ok := m.users[id]
	if !ok {
		m.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	u.FirstName, u.LastName, u.Email, u.Phone, u.Bio = upd.FirstName, upd.LastName, strings.ToLower(upd.Email), upd.Phone, upd.Bio
	m.mu.Unlock()
	return m.GetUserByID(ctx, id)
}

// tracks

type trackRepo struct{ *memStore }

func (r trackRepo) CreateTrack(ctx context.Context, t *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tracks[t.ID] = &cp
	return nil
}

func (r trackRepo) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r trackRepo) ListTracksByUserID(ctx context.Context, userID int64) ([]*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Track{}
	for _, t := range r.tracks {
		if t.UserID != userID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r trackRepo) UpdateTrackStatus(ctx context.Context, id string, status model.TrackStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks[id].Status = status
	return nil
}

func (r trackRepo) AttachObject(ctx context.Context, id, key, cdnURL string, status model.TrackStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tracks[id]
	t.ObjectKey, t.CDNURL, t.Status = key, cdnURL, status
	return nil
}

// ledger

type ledgerRepo struct {
	repository.LedgerRepository
	*memStore
}

func (l ledgerRepo) Balance(ctx context.Context, userID int64, monthStart time.Time) (*model.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := &model.Balance{UserID: userID, Available: l.available[userID]}
	for _, t := range l.txns {
		if t.UserID != userID {
			continue
		}
		switch {
		case t.Type == model.TransactionWithdrawal && t.Status == model.TransactionPending:
			b.Pending += t.Amount
		case t.Type == model.TransactionSale && t.Status == model.TransactionCompleted:
			b.EarnedTotal += t.Amount
		}
	}
	return b, nil
}

func (l ledgerRepo) CreateWithdrawal(ctx context.Context, txn *model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if txn.Amount > l.available[txn.UserID] {
		return repository.ErrInsufficientFunds
	}
	l.available[txn.UserID] -= txn.Amount
	l.txns = append(l.txns, txn)
	return nil
}

func (l ledgerRepo) RecordSale(ctx context.Context, trackID string, txn *model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tracks[trackID]
	if !ok || t.Status != model.TrackStatusActive {
		return repository.ErrTrackNotActive
	}
	t.Status = model.TrackStatusSold
	l.available[txn.UserID] += txn.Amount
	l.txns = append(l.txns, txn)
	return nil
}

func (l ledgerRepo) ListTransactions(ctx context.Context, userID int64, typ model.TransactionType) ([]*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.Transaction
	for i := len(l.txns) - 1; i >= 0; i-- {
		if t := l.txns[i]; t.UserID == userID && (typ == "" || t.Type == typ) {
			out = append(out, t)
		}
	}
	return out, nil
}

// estimates

type estimateStore struct{ *memStore }

func (e estimateStore) Put(ctx context.Context, p *model.PendingUpload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.estimates[p.Estimate.ID] = p
	return nil
}

func (e estimateStore) Take(ctx context.Context, id string) (*model.PendingUpload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.estimates[id]
	if !ok {
		return nil, cache.ErrEstimateNotFound
	}
	delete(e.estimates, id)
	return p, nil
}

type nopScheduler struct{}

func (nopScheduler) Schedule(ctx context.Context, id string, due time.Time) error { return nil }

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (o *memObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[key] = data
	return nil
}

func (o *memObjects) Copy(ctx context.Context, src, dst string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[dst] = o.data[src]
	return nil
}

func (o *memObjects) Remove(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data, key)
	return nil
}

func (o *memObjects) Open(ctx context.Context, key string) (*storage.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.data[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{
		ReadSeekCloser: readSeekNopCloser{bytes.NewReader(data)},
		Size:           int64(len(data)),
		ContentType:    "audio/mpeg",
		ModTime:        time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}, nil
}

type readSeekNopCloser struct{ io.ReadSeeker }

func (readSeekNopCloser) Close() error { return nil }

func (o *memObjects) URL(key string) string { return "https://cdn.test/" + key }
