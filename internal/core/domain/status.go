package domain

import "fmt"

// PipelineStatus is the document's stage in the extraction/classification
// state machine. Values are stored verbatim, so they must never be renamed.
type PipelineStatus string

const (
	StatusUnprocessed         PipelineStatus = "unprocessed"
	StatusNeedsClassification PipelineStatus = "needsClassification"
	StatusProcessed           PipelineStatus = "processed"
	StatusNeedsReprocessing   PipelineStatus = "needsReprocessing"
	StatusReprocessingDone    PipelineStatus = "reprocessingDone"
	StatusSkipProcessing      PipelineStatus = "skipProcessing"
)

// transitions lists every legal edge. The only backward edges are the ones
// into needsReprocessing, reserved for the explicit operator action; the state
// machine itself never infers them.
var transitions = map[PipelineStatus][]PipelineStatus{
	StatusUnprocessed:         {StatusNeedsClassification, StatusSkipProcessing},
	StatusNeedsClassification: {StatusProcessed, StatusNeedsReprocessing, StatusSkipProcessing},
	StatusProcessed:           {StatusNeedsReprocessing, StatusSkipProcessing},
	StatusNeedsReprocessing:   {StatusReprocessingDone, StatusSkipProcessing},
	StatusReprocessingDone:    {StatusNeedsReprocessing, StatusSkipProcessing},
	StatusSkipProcessing:      {},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s PipelineStatus) CanTransition(next PipelineStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no edge leaves s.
func (s PipelineStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Complete reports whether the document has been through classification and
// needs no further pipeline action.
func (s PipelineStatus) Complete() bool {
	return s == StatusProcessed || s == StatusReprocessingDone
}

// Valid reports whether s is one of the known statuses.
func (s PipelineStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ParsePipelineStatus converts a stored string back into a status.
func ParsePipelineStatus(raw string) (PipelineStatus, error) {
	s := PipelineStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("parse pipeline status: %w: %q", ErrInvalidInput, raw)
	}
	return s, nil
}
