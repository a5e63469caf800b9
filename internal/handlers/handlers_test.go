package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-library/internal/artifact"
	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/mediatypes"
	"media-library/internal/scanner"
	"media-library/internal/watcher"
)

type testEnv struct {
	router *mux.Router
	db     *database.Database
	bus    *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus()
	t.Cleanup(func() { bus.Close() })

	s := scanner.New(db, bus)
	w := watcher.New(db, bus)
	t.Cleanup(w.Stop)
	c := artifact.NewCoordinator(db, bus, filepath.Join(t.TempDir(), "thumbs"))

	router := mux.NewRouter()
	New(db, s, w, c, bus).RegisterRoutes(router)

	return &testEnv{router: router, db: db, bus: bus}
}

func (e *testEnv) request(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func (e *testEnv) seedAsset(t *testing.T, path string, kind mediatypes.Kind) {
	t.Helper()
	if err := e.db.UpsertByPath(context.Background(), database.NewAssetFromPath(path, kind, 1)); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func TestStartScanValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing root", `{}`, http.StatusBadRequest},
		{"unknown field", `{"folder":"/tmp"}`, http.StatusBadRequest},
		{"nonexistent root", `{"root":"/does/not/exist"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/api/library/scan", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStartScanAccepted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "pic.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec := env.request(t, http.MethodPost, "/api/library/scan", `{"root":"`+root+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	// The scan runs in the background; poll until the file lands.
	deadline := time.Now().Add(10 * time.Second)
	for {
		count, err := env.db.CountAssets(context.Background(), "all")
		if err != nil {
			t.Fatalf("CountAssets() error = %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan never imported the file, count = %d", count)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestListAssetsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAsset(t, "/media/a.png", mediatypes.KindImage)
	env.seedAsset(t, "/media/b.mp3", mediatypes.KindAudio)
	env.seedAsset(t, "/media/c.mp4", mediatypes.KindVideo)

	rec := env.request(t, http.MethodGet, "/api/assets?page=1&page_size=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var page database.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Data) != 2 || page.TotalItems != 3 || page.TotalPages != 2 {
		t.Errorf("page = %d items, %d total, %d pages; want 2/3/2",
			len(page.Data), page.TotalItems, page.TotalPages)
	}

	rec = env.request(t, http.MethodGet, "/api/assets?kind=audio", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.TotalItems != 1 || page.Data[0].Filename != "b.mp3" {
		t.Errorf("kind filter returned %+v, want just b.mp3", page.Data)
	}

	rec = env.request(t, http.MethodGet, "/api/assets?page=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad page = %d, want 400", rec.Code)
	}
}

func TestCountAssetsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAsset(t, "/media/a.png", mediatypes.KindImage)
	env.seedAsset(t, "/media/b.png", mediatypes.KindImage)

	rec := env.request(t, http.MethodGet, "/api/assets/count?kind=image", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if resp["count"] != 2 {
		t.Errorf("count = %d, want 2", resp["count"])
	}
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	path := filepath.Join(t.TempDir(), "doomed.png")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	env.seedAsset(t, path, mediatypes.KindImage)

	rec := env.request(t, http.MethodDelete, "/api/files?path="+path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still on disk after delete")
	}
	count, err := env.db.CountAssets(context.Background(), "all")
	if err != nil {
		t.Fatalf("CountAssets() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountAssets() = %d, want 0", count)
	}

	// Missing path parameter is a client error.
	rec = env.request(t, http.MethodDelete, "/api/files", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status without path = %d, want 400", rec.Code)
	}

	// A row whose file already vanished still gets cleaned up.
	ghost := filepath.Join(t.TempDir(), "ghost.png")
	env.seedAsset(t, ghost, mediatypes.KindImage)
	rec = env.request(t, http.MethodDelete, "/api/files?path="+ghost, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status for ghost = %d, want 200", rec.Code)
	}
	if count, _ := env.db.CountAssets(context.Background(), "all"); count != 0 {
		t.Errorf("ghost row survived, count = %d", count)
	}
}

func TestWatchEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	root := t.TempDir()

	rec := env.request(t, http.MethodPost, "/api/library/watch", `{"root":"`+root+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("watch status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = env.request(t, http.MethodPost, "/api/library/watch/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/library/watch", `{"root":"/does/not/exist"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("watch bad root status = %d, want 400", rec.Code)
	}
}

func TestClearEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAsset(t, "/media/a.png", mediatypes.KindImage)

	rec := env.request(t, http.MethodPost, "/api/library/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	count, err := env.db.CountAssets(context.Background(), "all")
	if err != nil {
		t.Fatalf("CountAssets() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountAssets() = %d, want 0 after clear", count)
	}
}

func TestArtifactEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// Nothing pending on an empty catalog, but the request succeeds.
	rec := env.request(t, http.MethodPost, "/api/artifacts/thumbnails", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("thumbnails status = %d, want 202: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["pending"] != 0 {
		t.Errorf("pending = %d, want 0", resp["pending"])
	}

	rec = env.request(t, http.MethodPost, "/api/artifacts/waveforms", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("waveforms status = %d, want 202", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/artifacts/cancel", "")
	if rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d, want 200", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAsset(t, "/media/a.png", mediatypes.KindImage)

	rec := env.request(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != statusHealthy {
		t.Errorf("Status = %q, want %q", health.Status, statusHealthy)
	}
	if health.TotalAssets != 1 {
		t.Errorf("TotalAssets = %d, want 1", health.TotalAssets)
	}
	if health.Scanning || health.Watching {
		t.Errorf("Scanning=%v Watching=%v, want both false", health.Scanning, health.Watching)
	}
}

func TestStreamEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	// Give the subscription a moment to attach before publishing.
	time.Sleep(100 * time.Millisecond)
	env.bus.PublishFileAdded("fresh.png", mediatypes.KindImage)

	lines := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	deadline := time.AfterFunc(10*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()

	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}

	if eventLine != "event: "+events.TopicFileAdded {
		t.Errorf("event line = %q, want file-added", eventLine)
	}

	var payload events.FileAdded
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &payload); err != nil {
		t.Fatalf("decode SSE payload %q: %v", dataLine, err)
	}
	if payload.Filename != "fresh.png" {
		t.Errorf("payload = %+v, want fresh.png", payload)
	}
}
