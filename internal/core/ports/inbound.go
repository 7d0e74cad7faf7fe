package ports

import (
	"context"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// DocumentPipeline is the inbound contract for the state machine.
type DocumentPipeline interface {
	// Advance runs the single transition action matching the document's
	// current status. Complete and terminal statuses are a no-op.
	Advance(ctx context.Context, documentID string) error
	// Process advances the document until it reaches a complete or
	// terminal status.
	Process(ctx context.Context, documentID string) error
	// MarkForReprocessing is the one explicit backward transition.
	MarkForReprocessing(ctx context.Context, documentID, reason string) error
}

// SourceIntake admits a discovered source into the pipeline.
type SourceIntake interface {
	Admit(ctx context.Context, sourceID string) (*domain.ExpertDocument, error)
}
