package config

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lintas.json")

	cfg := DefaultConfig()
	cfg.Hosted.BaseURL = "https://api.example.com"
	cfg.Hosted.APIKey = "k"
	cfg.DataDir = dir
	require.NoError(t, cfg.Save(path))

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, func(c *Config) {
		mu.Lock()
		got = c
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Stop()

	cfg.Session.MaxMessages = 7
	require.NoError(t, cfg.Save(path))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Session.MaxMessages == 7
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcher_RejectsInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lintas.json")

	cfg := DefaultConfig()
	cfg.Hosted.BaseURL = "https://api.example.com"
	cfg.Hosted.APIKey = "k"
	cfg.DataDir = dir
	require.NoError(t, cfg.Save(path))

	var mu sync.Mutex
	calls := 0
	w, err := NewWatcher(path, func(c *Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Stop()

	// An edit that fails validation must not reach the callback.
	broken := DefaultConfig()
	broken.DefaultBackend = "smoke-signals"
	broken.DataDir = dir
	require.NoError(t, broken.Save(path))

	time.Sleep(600 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("", func(*Config) {})
	assert.Error(t, err)

	_, err = NewWatcher("/tmp/x.json", nil)
	assert.Error(t, err)
}
