package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/ports"
)

// IntakeUseCase admits source records into the pipeline by creating
// their expert document in the unprocessed status. Admission is
// idempotent per source.
type IntakeUseCase struct {
	sources   ports.SourceRepository
	documents ports.ExpertDocumentRepository
	queue     ports.MessageQueue
	log       *slog.Logger
}

// NewIntakeUseCase wires the intake flow. queue may be nil when no
// broker is configured; admission then happens without an event.
func NewIntakeUseCase(sources ports.SourceRepository, documents ports.ExpertDocumentRepository, queue ports.MessageQueue, log *slog.Logger) *IntakeUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &IntakeUseCase{sources: sources, documents: documents, queue: queue, log: log}
}

func (uc *IntakeUseCase) Admit(ctx context.Context, sourceID string) (*domain.ExpertDocument, error) {
	src, err := uc.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fetch source record: %w", err)
	}
	if src.IsDeleted {
		return nil, domain.WrapError(domain.ErrInvalidInput, "admit source",
			fmt.Errorf("source %s is deleted", sourceID))
	}

	existing, err := uc.documents.GetBySourceID(ctx, sourceID)
	if err == nil {
		uc.log.Debug("intake.already_admitted",
			"source_id", sourceID,
			"document_id", existing.ID)
		return existing, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("fetch document by source: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.ExpertDocument{
		ID:             uuid.NewString(),
		SourceID:       src.ID,
		PipelineStatus: domain.StatusUnprocessed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create expert document: %w", err)
	}

	if uc.queue != nil {
		if err := uc.queue.PublishSourceDiscovered(ctx, src.ID); err != nil {
			return nil, fmt.Errorf("publish source discovered: %w", err)
		}
	}

	uc.log.Info("intake.admitted",
		"source_id", src.ID,
		"document_id", doc.ID,
		"mime_type", src.MimeType)
	return doc, nil
}
