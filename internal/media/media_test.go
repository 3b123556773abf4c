package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	mp4Bytes  = append([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}, make([]byte, 64)...)
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestKindExt(t *testing.T) {
	assert.Equal(t, ".jpg", Photo.Ext())
	assert.Equal(t, ".mp4", Video.Ext())
	assert.Equal(t, "video", NewVideo("u").Kind.String())
	assert.Equal(t, "photo", NewPhoto("u").Kind.String())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo":
			w.Write(jpegBytes)
		case "/video":
			w.Write(mp4Bytes)
		case "/login-wall":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<!DOCTYPE html><html><body>Login</body></html>"))
		case "/empty":
		case "/gone":
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		media   Media
		wantErr bool
		ext     string
	}{
		{"photo", NewPhoto(srv.URL + "/photo"), false, ".jpg"},
		// extension follows the kind, not the URL
		{"video at jpg-looking url", NewVideo(srv.URL + "/video?x=.jpg"), false, ".mp4"},
		{"non-2xx", NewPhoto(srv.URL + "/gone"), true, ""},
		{"html body", NewPhoto(srv.URL + "/login-wall"), true, ""},
		{"empty body", NewPhoto(srv.URL + "/empty"), true, ""},
		{"transport error", NewPhoto("http://127.0.0.1:1/nothing"), true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			f, err := NewFetcher(srv.Client(), dir, 0, "test-agent")
			require.NoError(t, err)

			a, err := f.Download(context.Background(), tt.media, "chat-7")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrDownload)
				assert.Nil(t, a)
				assert.Empty(t, listDir(t, dir), "no partial artifact may remain")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.ext, filepath.Ext(a.Path))
			assert.True(t, strings.HasPrefix(filepath.Base(a.Path), "chat-7_"))
			assert.Equal(t, tt.media.Kind, a.Kind)
			assert.Greater(t, a.Size, int64(0))

			require.NoError(t, a.Remove())
			require.NoError(t, a.Remove(), "remove is idempotent")
			assert.Empty(t, listDir(t, dir))
		})
	}
}

func TestDownloadNamesAreUniquePerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := NewFetcher(srv.Client(), dir, 0, "")
	require.NoError(t, err)

	a, err := f.Download(context.Background(), NewPhoto(srv.URL), "same-chat")
	require.NoError(t, err)
	b, err := f.Download(context.Background(), NewPhoto(srv.URL), "same-chat")
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
	assert.Len(t, listDir(t, dir), 2)
}

func TestDownloadSizeCap(t *testing.T) {
	big := append(append([]byte{}, jpegBytes...), make([]byte, 10000)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := NewFetcher(srv.Client(), dir, 4096, "")
	require.NoError(t, err)

	_, err = f.Download(context.Background(), NewPhoto(srv.URL), "x")
	require.ErrorIs(t, err, ErrDownload)
	assert.Empty(t, listDir(t, dir))
}

func TestJanitorSweep(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.jpg")
	newFile := filepath.Join(dir, "new.jpg")
	require.NoError(t, os.WriteFile(oldFile, jpegBytes, 0600))
	require.NoError(t, os.WriteFile(newFile, jpegBytes, 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0700))

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	j, err := NewJanitor(dir, time.Hour, "@every 1h")
	require.NoError(t, err)

	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"new.jpg", "subdir"}, listDir(t, dir))
}

func TestJanitorBadSchedule(t *testing.T) {
	_, err := NewJanitor(t.TempDir(), time.Minute, "every now and then")
	assert.Error(t, err)
}

func TestJanitorStartStop(t *testing.T) {
	j, err := NewJanitor(filepath.Join(t.TempDir(), "missing"), time.Minute, "@every 1h")
	require.NoError(t, err)
	j.Start()
	j.Stop()
}
