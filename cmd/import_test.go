package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trackmarket/core/audio"
	"trackmarket/core/market"
	"trackmarket/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImporter struct {
	mu     sync.Mutex
	listed []string
	prices []int64
}

func (f *fakeImporter) UploadAndEstimate(ctx context.Context, userID int64, name string, data []byte) (*model.Estimate, error) {
	if string(data) == "text" {
		return nil, audio.ErrNotAudio
	}
	return &model.Estimate{ID: name, EstimatedPrice: 4000, FileName: name}, nil
}

func (f *fakeImporter) Sell(ctx context.Context, userID int64, req market.SellRequest) (*model.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price := req.Price
	if price == 0 {
		price = 4000
	}
	f.listed = append(f.listed, req.EstimateID)
	f.prices = append(f.prices, price)
	return &model.Track{FileName: req.EstimateID, Price: price}, nil
}

func (f *fakeImporter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listed...)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.mp3":     "audio",
		"a.WAV":     "audio",
		"cover.jpg": "image",
		"fake.mp3":  "text",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.mp3"), 0o755))

	f := &fakeImporter{}
	n, err := importDir(context.Background(), f, 1, dir, 9000)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a.WAV", "b.mp3"}, f.names())
	assert.Equal(t, []int64{9000, 9000}, f.prices)
}

func TestImportDirMissing(t *testing.T) {
	_, err := importDir(context.Background(), &fakeImporter{}, 1, filepath.Join(t.TempDir(), "nope"), 0)
	assert.Error(t, err)
}

func TestWatchDirImportsNewFiles(t *testing.T) {
	dir := t.TempDir()
	f := &fakeImporter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- watchDir(ctx, f, 1, dir, 0) }()

	// the watcher needs a moment to register
	time.Sleep(100 * time.Millisecond)
	writeFiles(t, dir, map[string]string{"new.flac": "audio", "notes.txt": "text"})

	require.Eventually(t, func() bool { return len(f.names()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"new.flac"}, f.names())

	cancel()
	require.NoError(t, <-done)
}

type callLog struct {
	mu    sync.Mutex
	paths []string
}

func (c *callLog) add(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, p)
}

func (c *callLog) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	calls := &callLog{}
	d := newDebouncer(30*time.Millisecond, calls.add)

	for i := 0; i < 5; i++ {
		d.trigger("a.mp3")
	}
	d.trigger("b.mp3")

	require.Eventually(t, func() bool { return len(calls.get()) == 2 }, time.Second, 10*time.Millisecond)
	d.stop()
	assert.ElementsMatch(t, []string{"a.mp3", "b.mp3"}, calls.get())
}

func TestDebouncerStaleTimerLeavesNewerOne(t *testing.T) {
	calls := &callLog{}
	d := newDebouncer(time.Hour, calls.add)

	d.trigger("a.mp3")
	d.mu.Lock()
	first := d.timers["a.mp3"]
	d.mu.Unlock()

	// a second event arrives while the first timer's callback is still waiting
	d.trigger("a.mp3")
	d.fire("a.mp3", &first)

	assert.Empty(t, calls.get())
	d.mu.Lock()
	require.Contains(t, d.timers, "a.mp3")
	assert.NotSame(t, first, d.timers["a.mp3"])
	d.mu.Unlock()

	// the newer timer is still tracked, so stop cancels it
	d.stop()
	assert.Empty(t, calls.get())
	assert.Empty(t, d.timers)
}
