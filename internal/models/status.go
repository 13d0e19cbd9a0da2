package models

// ReelStatus is the job state machine. The non-terminal states form a line;
// failed and cancelled are reachable from any non-terminal state.
type ReelStatus string

const (
	ReelStatusProcessing          ReelStatus = "processing"
	ReelStatusAnalyzing           ReelStatus = "analyzing"
	ReelStatusGeneratingVoiceover ReelStatus = "generating_voiceover"
	ReelStatusGatheringVisuals    ReelStatus = "gathering_visuals"
	ReelStatusAssemblingVideo     ReelStatus = "assembling_video"
	ReelStatusFinalizing          ReelStatus = "finalizing"
	ReelStatusCompleted           ReelStatus = "completed"
	ReelStatusFailed              ReelStatus = "failed"
	ReelStatusCancelled           ReelStatus = "cancelled"
)

var reelStatusOrder = []ReelStatus{
	ReelStatusProcessing,
	ReelStatusAnalyzing,
	ReelStatusGeneratingVoiceover,
	ReelStatusGatheringVisuals,
	ReelStatusAssemblingVideo,
	ReelStatusFinalizing,
	ReelStatusCompleted,
}

var reelStatusProgress = map[ReelStatus]float64{
	ReelStatusProcessing:          0,
	ReelStatusAnalyzing:           0.10,
	ReelStatusGeneratingVoiceover: 0.30,
	ReelStatusGatheringVisuals:    0.50,
	ReelStatusAssemblingVideo:     0.70,
	ReelStatusFinalizing:          0.90,
	ReelStatusCompleted:           1.0,
}

func (s ReelStatus) Valid() bool {
	switch s {
	case ReelStatusFailed, ReelStatusCancelled:
		return true
	}
	_, ok := reelStatusProgress[s]
	return ok
}

func (s ReelStatus) IsTerminal() bool {
	return s == ReelStatusCompleted || s == ReelStatusFailed || s == ReelStatusCancelled
}

// Checkpoint returns the fixed progress value for a linear state. Failed and
// cancelled have no checkpoint of their own; the job keeps the progress it
// had when it stopped.
func (s ReelStatus) Checkpoint() (float64, bool) {
	p, ok := reelStatusProgress[s]
	return p, ok
}

func (s ReelStatus) rank() int {
	for i, st := range reelStatusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to ReelStatus) bool {
	if from.IsTerminal() || !to.Valid() {
		return false
	}
	if to == ReelStatusFailed || to == ReelStatusCancelled {
		return true
	}
	return to.rank() == from.rank()+1
}
