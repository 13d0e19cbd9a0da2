package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/tempfiles"
)

const (
	musicDownloadAttempts = 3
	musicDownloadTimeout  = 60 * time.Second
	toneMatchScore        = 2
)

// MusicTrack is one catalog entry. Exactly one of File or URL is set; File
// is relative to the catalog file.
type MusicTrack struct {
	Title string        `yaml:"title"`
	File  string        `yaml:"file,omitempty"`
	URL   string        `yaml:"url,omitempty"`
	Tones []models.Tone `yaml:"tones"`
	Tags  []string      `yaml:"tags"`
}

type musicCatalog struct {
	Tracks []MusicTrack `yaml:"tracks"`
}

// MusicLibrary picks background music from a YAML catalog.
type MusicLibrary struct {
	dir     string
	tracks  []MusicTrack
	client  *http.Client
	timeout time.Duration // per download attempt
}

// LoadMusicLibrary reads the catalog at path.
func LoadMusicLibrary(catalogPath string, client *http.Client) (*MusicLibrary, error) {
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read music catalog: %w", err)
	}
	var cat musicCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse music catalog: %w", err)
	}
	tracks := lo.Filter(cat.Tracks, func(t MusicTrack, _ int) bool {
		return t.File != "" || t.URL != ""
	})
	if client == nil {
		client = &http.Client{}
	}
	log.Printf("[Music] Loaded %d tracks from %s", len(tracks), catalogPath)
	return &MusicLibrary{
		dir:     filepath.Dir(catalogPath),
		tracks:  tracks,
		client:  client,
		timeout: musicDownloadTimeout,
	}, nil
}

// Pick returns the best-scoring track: a tone match is worth two tag
// matches. Ties keep catalog order. ok is false when nothing scores.
func (m *MusicLibrary) Pick(tone models.Tone, keywords []string) (MusicTrack, bool) {
	want := lo.Uniq(lo.Compact(lo.Map(keywords, func(k string, _ int) string {
		return strings.ToLower(strings.TrimSpace(k))
	})))

	best, bestScore := MusicTrack{}, 0
	for _, t := range m.tracks {
		score := 0
		if lo.Contains(t.Tones, tone) {
			score += toneMatchScore
		}
		tags := lo.Map(t.Tags, func(s string, _ int) string { return strings.ToLower(s) })
		score += len(lo.Intersect(tags, want))
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best, bestScore > 0
}

// FindTrack returns a local path for the best track, or "" when nothing
// matches. Remote tracks are downloaded into the job's tracker.
func (m *MusicLibrary) FindTrack(ctx context.Context, tone models.Tone, keywords []string, tracker *tempfiles.Tracker) (string, error) {
	track, ok := m.Pick(tone, keywords)
	if !ok {
		return "", nil
	}

	if track.File != "" {
		p := track.File
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.dir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("music track %q: %w", track.Title, err)
		}
		log.Printf("[Music] Using %q (%s)", track.Title, filepath.Base(p))
		return p, nil
	}

	dest := tracker.Path("music", musicExt(track.URL))
	if err := m.download(ctx, track.URL, dest); err != nil {
		_ = tracker.Release(dest)
		return "", fmt.Errorf("music track %q: %w", track.Title, err)
	}
	log.Printf("[Music] Downloaded %q", track.Title)
	return dest, nil
}

func (m *MusicLibrary) download(ctx context.Context, rawURL, dest string) error {
	var lastErr error
	for attempt := 0; attempt < musicDownloadAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		retry, err := m.downloadOnce(ctx, rawURL, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
		log.Printf("[Music] Download attempt %d failed (retryable): %v", attempt+1, err)
	}
	return lastErr
}

func (m *MusicLibrary) downloadOnce(ctx context.Context, rawURL, dest string) (bool, error) {
	dlCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return true, fmt.Errorf("download interrupted: %w", err)
	}
	return false, f.Close()
}

func musicExt(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".mp3", ".m4a", ".aac", ".wav", ".ogg":
			return ext
		}
	}
	return ".mp3"
}
