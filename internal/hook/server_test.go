// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/rssbrr/internal/database"
	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/models"
)

// fakeCompletionQb fakes the torrent client side of a completion callback:
// login always succeeds and the torrent listing returns one configurable
// torrent.
type fakeCompletionQb struct {
	mu          sync.Mutex
	torrentName string
	contentPath string
	lastTag     string
}

func (f *fakeCompletionQb) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session-token", Path: "/"})
		w.Write([]byte("Ok."))
	})

	mux.HandleFunc("/api/v2/app/webapiVersion", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2.11.2"))
	})

	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastTag = r.URL.Query().Get("tag")
		name, path := f.torrentName, f.contentPath
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"name": name, "hash": "abc", "content_path": path, "tags": ""},
		})
	})

	return mux
}

func (f *fakeCompletionQb) setTorrent(name, contentPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrentName = name
	f.contentPath = contentPath
}

func (f *fakeCompletionQb) taggedWith() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTag
}

type hookEnv struct {
	library string
	qb      *fakeCompletionQb
	metrics *metrics.Metrics
	hookURL string
}

// newHookEnv assembles a full completion-hook fixture: a seeded database, a
// config file pointing at a fake qBittorrent, and the hook router itself.
func newHookEnv(t *testing.T) *hookEnv {
	t.Helper()

	base := t.TempDir()
	library := filepath.Join(base, "library")
	require.NoError(t, os.MkdirAll(library, 0o755))

	dbPath := filepath.Join(base, "rssbrr.db")
	db, err := database.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, models.NewTorrentRecordStore(db).Insert(context.Background(), testRecord()))
	require.NoError(t, db.Close())

	qb := &fakeCompletionQb{}
	qbSrv := httptest.NewServer(qb.handler())
	t.Cleanup(qbSrv.Close)

	configPath := filepath.Join(base, "config.toml")
	configContent := fmt.Sprintf(`db_uri = %q
link_to = %q
tmdb_secret = "tmdb-key"
hook_listen = ":0"

[gpt]
url = "https://api.openai.com/v1"
token = "sk-test"
model = "gpt-4o-mini"

[qb]
base_url = %q
username = "admin"
password = "adminadmin"
`, dbPath, library, qbSrv.URL)
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	m := metrics.New()
	hookSrv := httptest.NewServer(NewServer(configPath, ":0", m).Router())
	t.Cleanup(hookSrv.Close)

	return &hookEnv{
		library: library,
		qb:      qb,
		metrics: m,
		hookURL: hookSrv.URL,
	}
}

func (e *hookEnv) postCompletion(t *testing.T, title string) (int, string) {
	t.Helper()

	resp, err := http.Post(e.hookURL+"/qb_hook", "text/plain", strings.NewReader(title))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestParseTorrentID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		title   string
		want    int64
		wantErr string
	}{
		{
			name:  "canonical rename",
			title: "BanG Dream! It's MyGO!!!!! - S01E09 - 1080p - zh - LoliHouse - tid12345",
			want:  12345,
		},
		{
			name:  "last separator wins",
			title: "Weird - tid1 in the middle - tid999",
			want:  999,
		},
		{
			name:    "no separator",
			title:   "BanG Dream! It's MyGO!!!!! - S01E09",
			wantErr: "carries no torrent id",
		},
		{
			name:    "empty title",
			title:   "",
			wantErr: "carries no torrent id",
		},
		{
			name:    "non-numeric id",
			title:   "Show - S01E01 - tidabc",
			wantErr: "invalid torrent id",
		},
		{
			name:    "empty id",
			title:   "Show - S01E01 - tid",
			wantErr: "invalid torrent id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := ParseTorrentID(tt.title)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCompletionCallbackLinksDownload(t *testing.T) {
	t.Parallel()

	env := newHookEnv(t)

	downloads := t.TempDir()
	contentPath := filepath.Join(downloads, "ep09.mkv")
	require.NoError(t, os.WriteFile(contentPath, []byte("video"), 0o644))

	title := "BanG Dream! It's MyGO!!!!! - S01E09 - 1080p - zh - LoliHouse - tid12345"
	env.qb.setTorrent(title, contentPath)

	status, body := env.postCompletion(t, title)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	assert.Equal(t, "BanG Dream! It's MyGO!!!!!", env.qb.taggedWith(),
		"torrents are located by the canonical show tag")

	target := filepath.Join(env.library,
		"BanG Dream! It's MyGO!!!!! (2023) [tmdbid=221]",
		"Season 1",
		"BanG Dream! It's MyGO!!!!! - S01E09 - LoliHouse-zh.mkv")
	require.FileExists(t, target)

	srcInfo, err := os.Stat(contentPath)
	require.NoError(t, err)
	dstInfo, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))

	// qBittorrent may fire the hook again; the second callback must succeed.
	status, body = env.postCompletion(t, title)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	assert.InDelta(t, 2.0, testutil.ToFloat64(env.metrics.HookRequests.WithLabelValues("ok")), 0.001)
}

func TestCompletionCallbackRejectsBadTitles(t *testing.T) {
	t.Parallel()

	env := newHookEnv(t)

	status, body := env.postCompletion(t, "no id in here")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "carries no torrent id")

	status, body = env.postCompletion(t, "Show - S01E01 - tidxyz")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "invalid torrent id")

	assert.InDelta(t, 2.0, testutil.ToFloat64(env.metrics.HookRequests.WithLabelValues("bad_request")), 0.001)
}

func TestCompletionCallbackUnknownRecord(t *testing.T) {
	t.Parallel()

	env := newHookEnv(t)

	status, body := env.postCompletion(t, "Some Show - S01E01 - 1080p - zh - Sub - tid99999")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "torrent record not found")

	assert.InDelta(t, 1.0, testutil.ToFloat64(env.metrics.HookRequests.WithLabelValues("error")), 0.001)
}

func TestCompletionCallbackNoMatchingTorrent(t *testing.T) {
	t.Parallel()

	env := newHookEnv(t)
	env.qb.setTorrent("a different torrent entirely", "/nowhere")

	status, body := env.postCompletion(t, "BanG Dream! It's MyGO!!!!! - S01E09 - 1080p - zh - LoliHouse - tid12345")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "no torrent named")
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	env := newHookEnv(t)

	resp, err := http.Get(env.hookURL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newHookEnv(t)

	resp, err := http.Get(env.hookURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
