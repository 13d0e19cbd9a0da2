package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDecodeJob(t *testing.T) {
	reelID := uuid.New()
	raw, err := json.Marshal(Job{ID: uuid.New(), Type: "render_reel", ReelID: reelID})
	if err != nil {
		t.Fatal(err)
	}

	job, err := decodeJob(string(raw))
	if err != nil {
		t.Fatalf("decodeJob returned error: %v", err)
	}
	if job.ReelID != reelID || job.Type != "render_reel" {
		t.Errorf("unexpected job: %+v", job)
	}
}

func TestDecodeJobRejectsMissingReel(t *testing.T) {
	if _, err := decodeJob(`{"id":"` + uuid.NewString() + `","type":"render_reel"}`); err == nil {
		t.Error("expected error for job without reel id")
	}
	if _, err := decodeJob(`not json`); err == nil {
		t.Error("expected error for malformed job")
	}
}

func TestCancelKey(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	if got := cancelKey(id); got != "reel:cancel:7d444840-9dc0-11d1-b245-5ffdce74fad2" {
		t.Errorf("cancelKey = %q", got)
	}
}
