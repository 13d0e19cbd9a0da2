package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bobarin/reels/internal/db"
	"github.com/bobarin/reels/internal/models"
)

type memStore struct {
	mu     sync.Mutex
	reels  map[uuid.UUID]*models.ReelJob
	failOn string
}

func newMemStore() *memStore {
	return &memStore{reels: map[uuid.UUID]*models.ReelJob{}}
}

func (m *memStore) CreateReel(_ context.Context, job *models.ReelJob) error {
	if m.failOn == "create" {
		return errors.New("db down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.reels[job.ID] = &cp
	return nil
}

func (m *memStore) GetReel(_ context.Context, id uuid.UUID) (*models.ReelJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reels[id]
	if !ok {
		return nil, db.ErrReelNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListReels(_ context.Context, status string, limit, offset int) ([]models.ReelJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ReelJob{}
	for _, r := range m.reels {
		if status == "" || string(r.Status) == status {
			out = append(out, *r)
		}
	}
	if offset >= len(out) {
		return []models.ReelJob{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountReels(_ context.Context, status string) (int, error) {
	all, _ := m.ListReels(context.Background(), status, 1<<30, 0)
	return len(all), nil
}

func (m *memStore) RequestCancel(_ context.Context, id uuid.UUID) (models.ReelStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reels[id]
	if !ok {
		return "", db.ErrReelNotFound
	}
	if !r.Status.IsTerminal() {
		r.CancelRequested = true
	}
	return r.Status, nil
}

func (m *memStore) put(r *models.ReelJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reels[r.ID] = r
}

type memQueue struct {
	enqueued  []uuid.UUID
	cancelled []uuid.UUID
}

func (q *memQueue) EnqueueRenderReel(_ context.Context, id uuid.UUID) error {
	q.enqueued = append(q.enqueued, id)
	return nil
}

func (q *memQueue) RequestCancel(_ context.Context, id uuid.UUID) error {
	q.cancelled = append(q.cancelled, id)
	return nil
}

type fakeSigner struct{}

func (fakeSigner) GetSignedURL(_ context.Context, storagePath string, expiresIn int) (string, error) {
	return "https://storage.example.com/" + storagePath + "?token=abc", nil
}

func testPath(id uuid.UUID) string { return "reels/" + id.String() + "/reel.mp4" }

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *memStore, *memQueue) {
	t.Helper()
	store := newMemStore()
	q := &memQueue{}
	h := NewHandler(store, q, fakeSigner{}, testPath)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{BackendAPIKey: apiKey}))
	t.Cleanup(srv.Close)
	return srv, store, q
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func TestCreateReel(t *testing.T) {
	srv, store, q := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/v1/reels", "application/json",
		strings.NewReader(`{"script":"  Five habits that changed my mornings.  ","tone":"inspirational"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body models.CreateReelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != models.ReelStatusProcessing {
		t.Errorf("status = %s", body.Status)
	}
	saved, err := store.GetReel(context.Background(), body.ReelID)
	if err != nil {
		t.Fatalf("reel not stored: %v", err)
	}
	if saved.Script != "Five habits that changed my mornings." {
		t.Errorf("script not trimmed: %q", saved.Script)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != body.ReelID {
		t.Errorf("enqueued = %v", q.enqueued)
	}
}

func TestCreateReelValidation(t *testing.T) {
	srv, _, q := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"empty script", `{"script":"   ","tone":"calm"}`},
		{"unknown tone", `{"script":"hello","tone":"sarcastic"}`},
		{"too long", `{"script":"` + strings.Repeat("a", maxScriptChars+1) + `","tone":"calm"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/reels", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if len(q.enqueued) != 0 {
		t.Errorf("invalid requests were enqueued: %v", q.enqueued)
	}
}

func TestListReelsFilters(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	store.put(&models.ReelJob{ID: uuid.New(), Status: models.ReelStatusCompleted})
	store.put(&models.ReelJob{ID: uuid.New(), Status: models.ReelStatusFailed})
	store.put(&models.ReelJob{ID: uuid.New(), Status: models.ReelStatusCompleted})

	resp, err := http.Get(srv.URL + "/v1/reels?status=completed&limit=500")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body models.ListReelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || len(body.Reels) != 2 {
		t.Errorf("total=%d reels=%d, want 2/2", body.Total, len(body.Reels))
	}
	if body.Limit != 100 {
		t.Errorf("limit = %d, want capped at 100", body.Limit)
	}

	bad, err := http.Get(srv.URL + "/v1/reels?status=rendering")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown status filter: got %d, want 400", bad.StatusCode)
	}
}

func TestGetReel(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	reel := &models.ReelJob{ID: uuid.New(), Status: models.ReelStatusCompleted, Progress: 1}
	store.put(reel)

	resp, err := http.Get(srv.URL + "/v1/reels/" + reel.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body models.ReelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.DownloadURL == nil || !strings.HasSuffix(*body.DownloadURL, "/download") {
		t.Errorf("download url = %v", body.DownloadURL)
	}

	for path, want := range map[string]int{
		"/v1/reels/not-a-uuid":          http.StatusBadRequest,
		"/v1/reels/" + uuid.NewString(): http.StatusNotFound,
	} {
		r, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		r.Body.Close()
		if r.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, r.StatusCode, want)
		}
	}
}

func TestCancelReel(t *testing.T) {
	srv, store, q := newTestServer(t, "")
	running := &models.ReelJob{ID: uuid.New(), Status: models.ReelStatusGatheringVisuals}
	done := &models.ReelJob{ID: uuid.New(), Status: models.ReelStatusCompleted}
	store.put(running)
	store.put(done)

	resp, err := http.Post(srv.URL+"/v1/reels/"+running.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("cancel running: status = %d, want 202", resp.StatusCode)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != running.ID {
		t.Errorf("cancel key not set: %v", q.cancelled)
	}
	if got, _ := store.GetReel(context.Background(), running.ID); !got.CancelRequested {
		t.Error("cancel flag not persisted")
	}

	resp, err = http.Post(srv.URL+"/v1/reels/"+done.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel completed: status = %d, want 409", resp.StatusCode)
	}
	if len(q.cancelled) != 1 {
		t.Errorf("terminal reel should not set a cancel key: %v", q.cancelled)
	}
}

func TestDownloadRedirectsToSignedURL(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	url := "https://cdn.example.com/reel.mp4"
	reel := &models.ReelJob{ID: uuid.New(), Status: models.ReelStatusCompleted, OutputURL: &url}
	store.put(reel)

	resp, err := noRedirect().Get(srv.URL + "/v1/reels/" + reel.ID.String() + "/download")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, testPath(reel.ID)) {
		t.Errorf("location = %q", loc)
	}
}

func TestDownloadServesLocalOutput(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	path := filepath.Join(t.TempDir(), "reel.mp4")
	if err := os.WriteFile(path, []byte("not really an mp4"), 0644); err != nil {
		t.Fatal(err)
	}
	reel := &models.ReelJob{ID: uuid.New(), Status: models.ReelStatusCompleted, OutputPath: &path}
	pending := &models.ReelJob{ID: uuid.New(), Status: models.ReelStatusAssemblingVideo}
	store.put(reel)
	store.put(pending)

	resp, err := http.Get(srv.URL + "/v1/reels/" + reel.ID.String() + "/download")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("local download: status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/reels/" + pending.ID.String() + "/download")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unfinished reel: status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "X-API-Key", "nope", http.StatusForbidden},
		{"header", "X-API-Key", "secret", http.StatusOK},
		{"bearer", "Authorization", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/reels", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	q, err := http.Get(srv.URL + "/v1/reels?api_key=secret")
	if err != nil {
		t.Fatal(err)
	}
	q.Body.Close()
	if q.StatusCode != http.StatusOK {
		t.Errorf("query key on GET: status = %d, want 200", q.StatusCode)
	}

	post, err := http.Post(srv.URL+"/v1/reels?api_key=secret", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusUnauthorized {
		t.Errorf("query key on POST: status = %d, want 401", post.StatusCode)
	}

	// health stays public
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d, want 200", resp.StatusCode)
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{"*"}},
		{" , ", []string{"*"}},
		{"https://a.example.com, https://b.example.com", []string{"https://a.example.com", "https://b.example.com"}},
	}
	for _, tt := range tests {
		got := parseOrigins(tt.raw)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("parseOrigins(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
