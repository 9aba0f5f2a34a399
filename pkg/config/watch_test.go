package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("element_cap: 100\n"), 0o644))

	opts := LoadOptions{
		Path:       path,
		DotEnvPath: filepath.Join(dir, ".env"),
		Getenv:     noEnv,
	}

	updates := make(chan *Settings, 4)
	w, err := NewWatcher(opts, func(s *Settings) { updates <- s }, testLogger())
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("element_cap: 900\n"), 0o644))

	select {
	case s := <-updates:
		assert.Equal(t, 900, s.ElementCap)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherKeepsOldSettingsOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("element_cap: 100\n"), 0o644))

	opts := LoadOptions{
		Path:       path,
		DotEnvPath: filepath.Join(dir, ".env"),
		Getenv:     noEnv,
	}

	updates := make(chan *Settings, 4)
	w, err := NewWatcher(opts, func(s *Settings) { updates <- s }, testLogger())
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	require.NoError(t, w.Start())
	defer w.Stop()

	// A malformed write must not reach the callback. A valid write after
	// it must, which also proves the watcher survived the bad state.
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("element_cap: 300\n"), 0o644))

	require.Eventually(t, func() bool {
		select {
		case s := <-updates:
			return s.ElementCap == 300
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("element_cap: 100\n"), 0o644))

	opts := LoadOptions{
		Path:       path,
		DotEnvPath: filepath.Join(dir, ".env"),
		Getenv:     noEnv,
	}

	updates := make(chan *Settings, 4)
	w, err := NewWatcher(opts, func(s *Settings) { updates <- s }, testLogger())
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-updates:
		t.Fatal("sibling file write triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(LoadOptions{Path: filepath.Join(dir, "config.yaml"), Getenv: noEnv}, func(*Settings) {}, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
