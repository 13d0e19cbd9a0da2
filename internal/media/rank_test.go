package media

import (
	"testing"

	"github.com/bobarin/reels/internal/models"
)

func video(id string, w, h int, d float64) Candidate {
	return Candidate{ID: id, Provider: "test", Kind: models.MediaKindVideo, URL: "http://x/" + id + ".mp4", Width: w, Height: h, Duration: d}
}

func TestRankCandidatesDurationFilterAndPortrait(t *testing.T) {
	cands := []Candidate{
		video("long-landscape", 1920, 1080, 30),
		video("ok-landscape", 1920, 1080, 6),
		video("ok-portrait", 1080, 1920, 5),
		video("short-portrait", 1080, 1920, 3),
	}

	got := RankCandidates(cands, models.MediaKindVideo, 4, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 within tolerance, got %d", len(got))
	}
	if got[0].ID != "ok-portrait" {
		t.Errorf("expected the covering portrait clip first, got %s", got[0].ID)
	}
	if got[1].ID != "short-portrait" {
		t.Errorf("expected the short portrait clip second, got %s", got[1].ID)
	}
	if got[2].ID != "ok-landscape" {
		t.Errorf("expected landscape last, got %s", got[2].ID)
	}
}

func TestRankCandidatesNoneWithinTolerance(t *testing.T) {
	cands := []Candidate{
		video("far", 1080, 1920, 60),
		video("closer", 1080, 1920, 15),
	}
	if got := RankCandidates(cands, models.MediaKindVideo, 4, 5); len(got) != 0 {
		t.Errorf("expected no candidates outside tolerance, got %+v", got)
	}
}

func TestRankCandidatesDropsWrongKind(t *testing.T) {
	cands := []Candidate{
		video("v", 1080, 1920, 4),
		{ID: "img", Kind: models.MediaKindImage, URL: "http://x/img.jpg", Width: 800, Height: 1200},
	}
	got := RankCandidates(cands, models.MediaKindImage, 4, 5)
	if len(got) != 1 || got[0].ID != "img" {
		t.Errorf("expected only the image, got %+v", got)
	}
}
