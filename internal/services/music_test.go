package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/tempfiles"
)

func writeCatalog(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "music.yaml")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMusicLibraryPick(t *testing.T) {
	dir := t.TempDir()
	lib, err := LoadMusicLibrary(writeCatalog(t, dir, `
tracks:
  - title: Soft Piano
    file: piano.mp3
    tones: [calm]
    tags: [piano, ambient]
  - title: Big Drums
    file: drums.mp3
    tones: [energetic, dramatic]
    tags: [drums, epic, cinematic]
  - title: Broken Entry
    tones: [calm]
`), nil)
	if err != nil {
		t.Fatalf("LoadMusicLibrary returned error: %v", err)
	}

	if got, ok := lib.Pick(models.ToneCalm, nil); !ok || got.Title != "Soft Piano" {
		t.Errorf("calm pick = %q, %t", got.Title, ok)
	}
	// three tag matches beat one tone match
	if got, _ := lib.Pick(models.ToneCalm, []string{"Epic", "drums", "cinematic"}); got.Title != "Big Drums" {
		t.Errorf("tag pick = %q, want Big Drums", got.Title)
	}
	if _, ok := lib.Pick(models.ToneHumorous, []string{"kazoo"}); ok {
		t.Error("expected no match")
	}
}

func TestMusicLibraryFindTrackLocalFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "piano.mp3"), []byte("mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	lib, err := LoadMusicLibrary(writeCatalog(t, dir, "tracks:\n  - title: Soft Piano\n    file: piano.mp3\n    tones: [calm]\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := tempfiles.NewTracker(t.TempDir(), "job")
	if err != nil {
		t.Fatal(err)
	}

	got, err := lib.FindTrack(context.Background(), models.ToneCalm, nil, tracker)
	if err != nil {
		t.Fatalf("FindTrack returned error: %v", err)
	}
	if got != filepath.Join(dir, "piano.mp3") {
		t.Errorf("path = %q", got)
	}
	if tracker.Len() != 0 {
		t.Error("library files must not be tracked for deletion")
	}
}

func TestMusicLibraryDownloadRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("remote-mp3"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	lib, err := LoadMusicLibrary(writeCatalog(t, dir, "tracks:\n  - title: Remote\n    url: "+srv.URL+"/track.m4a\n    tones: [energetic]\n"), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := tempfiles.NewTracker(t.TempDir(), "job")
	if err != nil {
		t.Fatal(err)
	}

	got, err := lib.FindTrack(context.Background(), models.ToneEnergetic, nil, tracker)
	if err != nil {
		t.Fatalf("FindTrack returned error: %v", err)
	}
	if filepath.Ext(got) != ".m4a" || !tracker.Owns(got) {
		t.Errorf("download not tracked: %q", got)
	}
	if data, _ := os.ReadFile(got); string(data) != "remote-mp3" {
		t.Errorf("content = %q", data)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected 2 requests, got %d", hits)
	}
}

func TestMusicLibraryDownloadFailureReleases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	lib, err := LoadMusicLibrary(writeCatalog(t, dir, "tracks:\n  - title: Gone\n    url: "+srv.URL+"/gone.mp3\n    tones: [calm]\n"), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := tempfiles.NewTracker(t.TempDir(), "job")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.FindTrack(context.Background(), models.ToneCalm, nil, tracker); err == nil {
		t.Fatal("expected error")
	}
	if tracker.Len() != 0 {
		t.Errorf("tracker still holds %d paths", tracker.Len())
	}
}

func TestMusicLibraryDownloadStalledHost(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	dir := t.TempDir()
	lib, err := LoadMusicLibrary(writeCatalog(t, dir, "tracks:\n  - title: Stalled\n    url: "+srv.URL+"/slow.mp3\n    tones: [calm]\n"), &http.Client{})
	if err != nil {
		t.Fatal(err)
	}
	lib.timeout = 50 * time.Millisecond
	tracker, err := tempfiles.NewTracker(t.TempDir(), "job")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := lib.FindTrack(context.Background(), models.ToneCalm, nil, tracker)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "Stalled") {
			t.Fatalf("expected download error for the stalled track, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("FindTrack hung on a host that never responds")
	}
	if n := atomic.LoadInt32(&hits); n != musicDownloadAttempts {
		t.Errorf("expected %d attempts, got %d", musicDownloadAttempts, n)
	}
	if tracker.Len() != 0 {
		t.Errorf("tracker still holds %d paths", tracker.Len())
	}
}
