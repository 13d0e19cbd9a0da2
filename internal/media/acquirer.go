package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/tempfiles"
)

const (
	downloadTimeout          = 120 * time.Second
	maxDownloadsPerAttempt   = 3
	defaultCandidatesPerPage = 15
)

// Prober checks a downloaded file is decodable. Optional.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Config struct {
	DurationTolerance   float64
	MinVideoBytes       int64
	MinImageBytes       int64
	RecentTTL           time.Duration
	RecentMaxEntries    int
	SimilarityThreshold float64
	PerPage             int
}

func DefaultConfig() Config {
	return Config{
		DurationTolerance:   defaultDurationTolerance,
		MinVideoBytes:       defaultMinVideoBytes,
		MinImageBytes:       defaultMinImageBytes,
		RecentTTL:           defaultRecentTTL,
		RecentMaxEntries:    defaultRecentMaxEntries,
		SimilarityThreshold: defaultSimilarityThreshold,
		PerPage:             defaultCandidatesPerPage,
	}
}

// Acquirer holds the provider chain. Per-job state lives in a Session.
type Acquirer struct {
	providers []Provider
	client    *http.Client
	prober    Prober
	cfg       Config
}

// NewAcquirer takes providers in priority order. prober may be nil.
func NewAcquirer(providers []Provider, client *http.Client, prober Prober, cfg Config) *Acquirer {
	return &Acquirer{providers: providers, client: client, prober: prober, cfg: cfg}
}

// Session is the acquisition state of one job: its tracker and its own
// recently-used set.
type Session struct {
	acq     *Acquirer
	tracker *tempfiles.Tracker
	recent  *RecentlyUsed
}

func (a *Acquirer) NewSession(tracker *tempfiles.Tracker) *Session {
	return &Session{
		acq:     a,
		tracker: tracker,
		recent:  NewRecentlyUsed(a.cfg.RecentTTL, a.cfg.RecentMaxEntries, a.cfg.SimilarityThreshold),
	}
}

type attempt struct {
	strategy Strategy
	provider Provider
}

// plan expands strategies x providers into the order they are tried: every
// provider for a strategy before moving to the next strategy.
func (a *Acquirer) plan(strategies []Strategy) []attempt {
	out := make([]attempt, 0, len(strategies)*len(a.providers))
	for _, s := range strategies {
		for _, p := range a.providers {
			out = append(out, attempt{strategy: s, provider: p})
		}
	}
	return out
}

// Fetch finds, downloads and validates media for a scene. It returns an
// AcquisitionError wrapping ErrNoMediaFound once every attempt is spent.
func (s *Session) Fetch(ctx context.Context, scene models.ScheduledScene) (*models.MediaAsset, error) {
	sceneID := scene.ID()
	kind := KindForScene(scene.Scene.VisualType)
	attempts := s.acq.plan(BuildStrategies(scene.Scene))

	for i, at := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cands, err := at.provider.Search(ctx, SearchQuery{Terms: at.strategy.Terms, Kind: kind, PerPage: s.acq.cfg.PerPage})
		if err != nil {
			log.Printf("[Media] Scene %s: %s/%s %q failed: %v", sceneID, at.provider.Name(), at.strategy.Name, at.strategy.Terms, err)
			continue
		}

		ranked := RankCandidates(cands, kind, scene.Duration, s.acq.cfg.DurationTolerance)
		if len(ranked) == 0 {
			log.Printf("[Media] Scene %s: %s/%s %q returned no usable %s", sceneID, at.provider.Name(), at.strategy.Name, at.strategy.Terms, kind)
			continue
		}

		tried := 0
		for _, c := range ranked {
			if tried >= maxDownloadsPerAttempt {
				break
			}
			claim, ok := s.recent.TryReserve(c.Key(), at.strategy.Terms)
			if !ok {
				continue
			}
			tried++

			asset, err := s.download(ctx, scene, c, at.strategy.Terms)
			if err != nil {
				s.recent.Unreserve(claim)
				log.Printf("[Media] Scene %s: rejected %s: %v", sceneID, c.Key(), err)
				continue
			}

			log.Printf("[Media] Scene %s: using %s (%dx%d, %.1fs) from attempt %d/%d %s %q",
				sceneID, c.Key(), c.Width, c.Height, c.Duration, i+1, len(attempts), at.strategy.Name, at.strategy.Terms)
			return asset, nil
		}
	}

	return nil, &models.AcquisitionError{SceneID: sceneID, Attempts: len(attempts), Err: models.ErrNoMediaFound}
}

func (s *Session) download(ctx context.Context, scene models.ScheduledScene, c Candidate, query string) (*models.MediaAsset, error) {
	dest := s.tracker.Path(fmt.Sprintf("media_%02d", scene.Index), extFor(c))

	size, err := s.acq.downloadFile(ctx, c.URL, dest)
	if err != nil {
		_ = s.tracker.Release(dest)
		return nil, err
	}

	minBytes := s.acq.cfg.MinImageBytes
	if c.Kind == models.MediaKindVideo {
		minBytes = s.acq.cfg.MinVideoBytes
	}
	if size < minBytes {
		_ = s.tracker.Release(dest)
		return nil, fmt.Errorf("file too small (%d bytes), likely a placeholder", size)
	}

	duration := c.Duration
	if s.acq.prober != nil {
		d, err := s.acq.prober.ProbeDuration(ctx, dest)
		if err != nil && c.Kind == models.MediaKindVideo {
			_ = s.tracker.Release(dest)
			return nil, fmt.Errorf("downloaded file is not decodable: %w", err)
		}
		if err == nil && c.Kind == models.MediaKindVideo {
			duration = d
		}
	}

	asset := &models.MediaAsset{
		ID:          c.ID,
		Provider:    c.Provider,
		Kind:        c.Kind,
		SourceURL:   c.URL,
		PageURL:     c.PageURL,
		Width:       c.Width,
		Height:      c.Height,
		Duration:    duration,
		ByteSize:    size,
		LocalPath:   dest,
		IsLandscape: c.Width > c.Height,
		Query:       query,
	}
	if asset.IsLandscape {
		asset.Crop = models.CenterCropToPortrait(c.Width, c.Height)
	}
	return asset, nil
}

// downloadFile streams url into dest with the provider retry policy.
func (a *Acquirer) downloadFile(ctx context.Context, rawURL, dest string) (int64, error) {
	var lastErr error
	for try := 0; try < maxProviderAttempts; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(retryDelay(try)):
			}
		}

		n, retry, err := a.downloadOnce(ctx, rawURL, dest)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if !retry {
			break
		}
		log.Printf("[Media] Download attempt %d failed (retryable): %v", try+1, err)
	}
	return 0, lastErr
}

func (a *Acquirer) downloadOnce(ctx context.Context, rawURL, dest string) (int64, bool, error) {
	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, isRetryableError(err), fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, isRetryableStatus(resp.StatusCode), fmt.Errorf("download returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return 0, isRetryableError(copyErr), fmt.Errorf("download interrupted: %w", copyErr)
	}
	if closeErr != nil {
		return 0, false, fmt.Errorf("failed to write %s: %w", dest, closeErr)
	}
	return n, false, nil
}

func extFor(c Candidate) string {
	if u, err := url.Parse(c.URL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		switch ext {
		case ".mp4", ".mov", ".webm", ".jpg", ".jpeg", ".png", ".webp":
			return ext
		}
	}
	if c.Kind == models.MediaKindImage {
		return ".jpg"
	}
	return ".mp4"
}
