package pipeline

import (
	"fmt"

	"github.com/bobarin/reels/internal/models"
)

// Reconcile rescales planned scene durations so they exactly span the
// voiceover, and lays the scenes end to end from zero. The last scene
// absorbs floating-point remainder so the sum equals voiceDuration.
func Reconcile(scenes []models.SceneDescriptor, voiceDuration float64) ([]models.ScheduledScene, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("timeline has no scenes")
	}
	if voiceDuration <= 0 {
		return nil, fmt.Errorf("invalid voiceover duration %.3f", voiceDuration)
	}

	var planned float64
	for _, s := range scenes {
		if s.Duration <= 0 {
			return nil, fmt.Errorf("scene %s has non-positive duration %.3f", s.ID, s.Duration)
		}
		planned += s.Duration
	}

	ratio := voiceDuration / planned
	out := make([]models.ScheduledScene, len(scenes))
	var start float64
	for i, s := range scenes {
		d := s.Duration * ratio
		if i == len(scenes)-1 {
			d = voiceDuration - start
		}
		out[i] = models.ScheduledScene{
			Index:     i,
			Scene:     s,
			StartTime: start,
			Duration:  d,
		}
		start += d
	}
	return out, nil
}

// ExtendForTransitions lengthens every scene but the last by t, the overlap
// each cross-transition consumes, so the joined video still spans the
// voiceover. StartTime keeps the narration schedule.
func ExtendForTransitions(schedule []models.ScheduledScene, t float64) []models.ScheduledScene {
	if t <= 0 || len(schedule) < 2 {
		return schedule
	}
	out := make([]models.ScheduledScene, len(schedule))
	copy(out, schedule)
	for i := 0; i < len(out)-1; i++ {
		out[i].Duration += t
	}
	return out
}
