// Package settlement pays out pending withdrawals once their delay expires.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trackmarket/logger"
	"trackmarket/model"
	"trackmarket/repository"

	"github.com/dustin/go-humanize"
)

// Queue is the delay queue of withdrawal ids.
type Queue interface {
	Schedule(ctx context.Context, id string, due time.Time) error
	Claim(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Contains(ctx context.Context, id string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, n model.Notification)
}

type Options struct {
	Delay         time.Duration // used when re-queueing after a restart
	Poll          time.Duration
	MaxAttempts   int
	SenderName    string
	TransferPause time.Duration // between "completed" and "transfer received"
	BatchSize     int64
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

func (o *Options) defaults() {
	if o.Poll <= 0 {
		o.Poll = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
}

type Worker struct {
	ledger   repository.LedgerRepository
	queue    Queue
	notifier Notifier
	opts     Options
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewWorker(ledger repository.LedgerRepository, queue Queue, notifier Notifier, opts Options) *Worker {
	opts.defaults()
	return &Worker{
		ledger:   ledger,
		queue:    queue,
		notifier: notifier,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run recovers lost queue entries, then polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.wg.Wait()

	if n, err := w.Recover(ctx); err != nil {
		logger.Error("[Settlement] recovery failed", logger.ErrorField(err))
	} else if n > 0 {
		logger.Info("[Settlement] re-queued pending withdrawals", logger.Int("count", n))
	}

	ticker := time.NewTicker(w.opts.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("[Settlement] poll failed", logger.ErrorField(err))
			}
		}
	}
}

// Recover puts every pending withdrawal that is missing from the queue back
// in, due Delay after it was created (or now, if that has passed).
func (w *Worker) Recover(ctx context.Context) (int, error) {
	pending, err := w.ledger.ListPendingWithdrawals(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, txn := range pending {
		queued, err := w.queue.Contains(ctx, txn.ID)
		if err != nil {
			return n, err
		}
		if queued {
			continue
		}
		due := txn.CreatedAt.Add(w.opts.Delay)
		if now := w.now(); due.Before(now) {
			due = now
		}
		if err := w.queue.Schedule(ctx, txn.ID, due); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Tick settles everything that is due and returns how many ids it claimed.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	ids, err := w.queue.Claim(ctx, w.now(), w.opts.BatchSize)
	for _, id := range ids {
		w.settle(ctx, id)
	}
	return len(ids), err
}

func (w *Worker) settle(ctx context.Context, id string) {
	txn, err := w.ledger.GetTransaction(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("[Settlement] dropping unknown transaction", logger.String("transactionId", id))
		return
	}
	if err != nil {
		w.retry(ctx, id, 0, err)
		return
	}
	if txn.Type != model.TransactionWithdrawal || txn.Status != model.TransactionPending {
		return
	}

	now := w.now()
	done, err := w.ledger.CompleteTransaction(ctx, id, now)
	if err != nil {
		w.retry(ctx, id, txn.Attempts, err)
		return
	}
	if !done {
		return
	}

	logger.Info("[Settlement] withdrawal completed",
		logger.String("transactionId", id),
		logger.Int64("userId", txn.UserID),
		logger.Int64("amount", txn.Amount))

	amount := humanize.Comma(txn.Amount)
	w.notifier.Notify(ctx, txn.UserID, model.Notification{
		Kind:        model.NotifyWithdrawalComplete,
		Title:       "Withdrawal completed",
		Description: fmt.Sprintf("%s ₽ sent to %s", amount, txn.Bank),
		Amount:      txn.Amount,
		RefID:       id,
		CreatedAt:   now,
	})

	transfer := model.Notification{
		Kind:        model.NotifyTransferReceived,
		Title:       "Transfer from " + w.opts.SenderName,
		Description: fmt.Sprintf("Incoming transfer of %s ₽", amount),
		Amount:      txn.Amount,
		RefID:       id,
	}
	bg := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if w.opts.TransferPause > 0 {
			t := time.NewTimer(w.opts.TransferPause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
		transfer.CreatedAt = w.now()
		w.notifier.Notify(bg, txn.UserID, transfer)
	}()
}

// retry re-queues id with exponential back-off. Once attempts run out the
// withdrawal is failed and its amount refunded.
func (w *Worker) retry(ctx context.Context, id string, attempts int, cause error) {
	if n, err := w.ledger.IncrementAttempts(ctx, id); err == nil {
		attempts = n
	} else {
		attempts++
	}

	now := w.now()
	if attempts >= w.opts.MaxAttempts {
		w.fail(ctx, id, cause)
		return
	}

	backoff := w.backoff(attempts)
	logger.Warn("[Settlement] settlement failed, retrying",
		logger.String("transactionId", id),
		logger.Int("attempt", attempts),
		logger.Duration("backoff", backoff),
		logger.ErrorField(cause))
	if err := w.queue.Schedule(ctx, id, now.Add(backoff)); err != nil {
		logger.Error("[Settlement] failed to re-queue", logger.String("transactionId", id), logger.ErrorField(err))
	}
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := w.opts.BaseBackoff
	for i := 1; i < attempts && d < w.opts.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, w.opts.MaxBackoff)
}

func (w *Worker) fail(ctx context.Context, id string, cause error) {
	now := w.now()
	failed, err := w.ledger.FailWithdrawal(ctx, id, now)
	if err != nil {
		// keep it queued; Recover or the next poll picks it up again
		logger.Error("[Settlement] failed to refund withdrawal",
			logger.String("transactionId", id), logger.ErrorField(err))
		if err := w.queue.Schedule(ctx, id, now.Add(w.opts.MaxBackoff)); err != nil {
			logger.Error("[Settlement] failed to re-queue", logger.String("transactionId", id), logger.ErrorField(err))
		}
		return
	}
	if !failed {
		return
	}

	logger.Error("[Settlement] withdrawal failed and refunded",
		logger.String("transactionId", id), logger.ErrorField(cause))

	txn, err := w.ledger.GetTransaction(ctx, id)
	if err != nil {
		return
	}
	w.notifier.Notify(ctx, txn.UserID, model.Notification{
		Kind:        model.NotifyWithdrawalFailed,
		Title:       "Withdrawal failed",
		Description: fmt.Sprintf("%s ₽ returned to your balance", humanize.Comma(txn.Amount)),
		Amount:      txn.Amount,
		RefID:       id,
		CreatedAt:   now,
	})
}
