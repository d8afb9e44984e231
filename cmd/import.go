package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"trackmarket/core/audio"
	"trackmarket/core/market"
	"trackmarket/logger"
	"trackmarket/model"
	"trackmarket/server"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	importEmail string
	importPrice int64
	importWatch bool
)

const importDebounce = 500 * time.Millisecond

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true, ".aac": true,
}

// importer is the part of market.Service the import command uses.
type importer interface {
	UploadAndEstimate(ctx context.Context, userID int64, fileName string, data []byte) (*model.Estimate, error)
	Sell(ctx context.Context, userID int64, req market.SellRequest) (*model.Track, error)
}

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "批量上架目录中的音频文件",
	Long:  `Estimates every audio file in a directory and lists it for the given seller. With --watch new files are listed as they appear.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := server.NewApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		user, err := app.Users.GetUserByEmail(ctx, importEmail)
		if err != nil {
			return fmt.Errorf("seller %s: %w", importEmail, err)
		}

		dir := args[0]
		n, err := importDir(ctx, app.Market, user.ID, dir, importPrice)
		fmt.Printf("已上架 %d 个曲目\n", n)
		if err != nil || !importWatch {
			return err
		}
		return watchDir(ctx, app.Market, user.ID, dir, importPrice)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importEmail, "email", "e", "artem@example.com", "卖家邮箱")
	importCmd.Flags().Int64Var(&importPrice, "price", 0, "固定价格（卢布），默认使用估价")
	importCmd.Flags().BoolVarP(&importWatch, "watch", "w", false, "监听目录并上架新文件")

	importCmd.Example = `  # 上架目录中的所有音频
  trackmarket import ./releases

  # 固定价格并持续监听
  trackmarket import ./releases --price 9000 --watch`
}

func isAudioFile(name string) bool {
	return audioExts[strings.ToLower(filepath.Ext(name))]
}

// importDir lists every audio file directly inside dir. Files that are not
// audio after all are skipped.
func importDir(ctx context.Context, svc importer, userID int64, dir string, price int64) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	n := 0
	for _, e := range entries {
		if e.IsDir() || !isAudioFile(e.Name()) {
			continue
		}
		if err := importFile(ctx, svc, userID, filepath.Join(dir, e.Name()), price); err != nil {
			if errors.Is(err, audio.ErrNotAudio) || errors.Is(err, market.ErrFileTooLarge) {
				logger.Warn("[Import] skipped", logger.String("file", e.Name()), logger.ErrorField(err))
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func importFile(ctx context.Context, svc importer, userID int64, path string, price int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)

	est, err := svc.UploadAndEstimate(ctx, userID, name, data)
	if err != nil {
		return err
	}
	track, err := svc.Sell(ctx, userID, market.SellRequest{EstimateID: est.ID, Price: price})
	if err != nil {
		return err
	}

	fmt.Printf("%-40s %8s  %s ₽\n", name, humanize.IBytes(uint64(len(data))), humanize.Comma(track.Price))
	return nil
}

// watchDir lists files as they are created. Writes are debounced so a file is
// imported once it stops changing.
func watchDir(ctx context.Context, svc importer, userID int64, dir string, price int64) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info("[Import] watching directory", logger.String("dir", dir))

	deb := newDebouncer(importDebounce, func(path string) {
		if ctx.Err() != nil {
			return
		}
		if err := importFile(ctx, svc, userID, path, price); err != nil {
			logger.Warn("[Import] failed", logger.String("file", path), logger.ErrorField(err))
		}
	})
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Import] watcher error", logger.ErrorField(err))

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) || !isAudioFile(ev.Name) {
				continue
			}

			deb.trigger(ev.Name)
		}
	}
}

// debouncer runs fn for a path once no trigger for it arrived for delay.
type debouncer struct {
	delay  time.Duration
	fn     func(path string)
	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func newDebouncer(delay time.Duration, fn func(path string)) *debouncer {
	return &debouncer{delay: delay, fn: fn, timers: map[string]*time.Timer{}}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.fire(path, &t)
	})
	d.timers[path] = t
}

// fire runs fn only when *self is still the latest timer for path. A timer
// that fired while a newer trigger replaced it leaves the work to the newer
// one. *self is written under mu, so it is read under mu too.
func (d *debouncer) fire(path string, self **time.Timer) {
	d.mu.Lock()
	if d.timers[path] != *self {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	d.mu.Unlock()
	d.fn(path)
}

// stop cancels pending timers and waits for running callbacks.
func (d *debouncer) stop() {
	d.mu.Lock()
	for path, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, path)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
