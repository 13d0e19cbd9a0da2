package tempfiles

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper removes job directories left behind by crashed processes. The
// per-job Tracker is still the normal cleanup path.
type Sweeper struct {
	baseDir string
	maxAge  time.Duration
	cron    *cron.Cron
	now     func() time.Time
}

func NewSweeper(baseDir string, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		baseDir: baseDir,
		maxAge:  maxAge,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start schedules SweepOnce with a cron spec such as "@hourly".
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.SweepOnce(); err != nil {
			log.Printf("[Temp] Sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	log.Printf("[Temp] Sweeper started (schedule=%s, max_age=%s, dir=%s)", schedule, s.maxAge, s.baseDir)
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce deletes job directories whose mtime is older than maxAge.
func (s *Sweeper) SweepOnce() (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.baseDir, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[Temp] Failed to sweep %s: %v", dir, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("[Temp] Swept %d stale job dirs", removed)
	}
	return removed, nil
}
