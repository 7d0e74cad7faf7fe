package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// Marker requests the explicit backward transition for one document.
type Marker interface {
	MarkForReprocessing(ctx context.Context, documentID, reason string) error
}

// MarkMalformedExhausted returns an exhaustion hook that moves a
// document whose classifier reply stayed malformed through every
// attempt into needsReprocessing, recording the parse failure. All
// other failure kinds keep their status-preserving outcome, and a
// document already inside the reprocessing branch stays there.
func MarkMalformedExhausted(marker Marker, log *slog.Logger) func(context.Context, string, error) {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, documentID string, err error) {
		ce, ok := domain.AsClassifierError(err)
		if !ok || ce.Kind != domain.ClassifierMalformedResponse {
			return
		}

		reason := fmt.Sprintf("classifier reply stayed malformed after every attempt: %s", ce.Message)
		if markErr := marker.MarkForReprocessing(ctx, documentID, reason); markErr != nil {
			// needsReprocessing has no edge onto itself; a reprocessing
			// run that failed the same way is already selectable again.
			if domain.IsKind(markErr, domain.ErrInvalidTransition) {
				return
			}
			log.Warn("batch.mark_reprocessing_failed",
				"document_id", documentID,
				"error", markErr)
			return
		}
		log.Info("batch.marked_for_reprocessing",
			"document_id", documentID,
			"reason", reason)
	}
}
