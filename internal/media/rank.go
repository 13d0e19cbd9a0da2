package media

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/bobarin/reels/internal/models"
)

const (
	defaultDurationTolerance = 5.0
	defaultMinVideoBytes     = 100 * 1024
	defaultMinImageBytes     = 10 * 1024
)

// RankCandidates orders candidates for download. Videos are first filtered
// to those within tolerance seconds of the target duration; when none
// qualify the attempt yields nothing and the next strategy runs. Portrait
// candidates rank above landscape ones.
func RankCandidates(cands []Candidate, kind models.MediaKind, target, tolerance float64) []Candidate {
	cands = lo.Filter(cands, func(c Candidate, _ int) bool {
		return c.Kind == kind && c.URL != ""
	})
	if len(cands) == 0 {
		return nil
	}

	if kind == models.MediaKindVideo {
		cands = lo.Filter(cands, func(c Candidate, _ int) bool {
			return math.Abs(c.Duration-target) <= tolerance
		})
		if len(cands) == 0 {
			return nil
		}
	}

	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i].IsPortrait(), ranked[j].IsPortrait()
		if pi != pj {
			return pi
		}
		if kind == models.MediaKindVideo {
			return durationPenalty(ranked[i].Duration, target) < durationPenalty(ranked[j].Duration, target)
		}
		return false
	})
	return ranked
}

// durationPenalty prefers clips that cover the scene without looping.
func durationPenalty(d, target float64) float64 {
	if d >= target {
		return d - target
	}
	return 2 * (target - d)
}
