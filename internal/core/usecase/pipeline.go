package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/ports"
)

// maxAdvancesPerRun bounds Process: the longest legal path through the
// status graph is unprocessed -> needsClassification -> processed.
const maxAdvancesPerRun = 3

// PipelineConfig carries the tunables the state machine needs. Zero
// values are replaced by normalize.
type PipelineConfig struct {
	// ClassifyMaxChars caps how much extracted text is sent to the
	// classifier in a single request.
	ClassifyMaxChars int
	// SkipMimePrefixes lists mime types (or "type/" prefixes) that are
	// routed straight to skipProcessing.
	SkipMimePrefixes []string
	// ModelName is recorded in classification metadata.
	ModelName string
}

func (c PipelineConfig) normalize() PipelineConfig {
	if c.ClassifyMaxChars <= 0 {
		c.ClassifyMaxChars = 60000
	}
	return c
}

// PipelineUseCase drives a document through the processing state
// machine one status transition at a time.
type PipelineUseCase struct {
	sources    ports.SourceRepository
	documents  ports.ExpertDocumentRepository
	content    ports.ContentSource
	extractor  ports.Extractor
	classifier ports.Classifier
	gate       ports.RateGate
	resolver   *Resolver
	cfg        PipelineConfig
	log        *slog.Logger
}

func NewPipelineUseCase(
	sources ports.SourceRepository,
	documents ports.ExpertDocumentRepository,
	content ports.ContentSource,
	extractor ports.Extractor,
	classifier ports.Classifier,
	gate ports.RateGate,
	resolver *Resolver,
	cfg PipelineConfig,
	log *slog.Logger,
) *PipelineUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &PipelineUseCase{
		sources:    sources,
		documents:  documents,
		content:    content,
		extractor:  extractor,
		classifier: classifier,
		gate:       gate,
		resolver:   resolver,
		cfg:        cfg.normalize(),
		log:        log,
	}
}

// Advance performs exactly one status transition for the document. A
// document that is already in a terminal or resting status is left
// untouched and reported as success, which keeps repeated batch runs
// idempotent.
func (uc *PipelineUseCase) Advance(ctx context.Context, documentID string) error {
	doc, src, err := uc.load(ctx, documentID)
	if err != nil {
		return err
	}

	if doc.PipelineStatus != domain.StatusSkipProcessing && uc.shouldSkip(src.MimeType) {
		return uc.markSkipped(ctx, doc, src)
	}

	switch doc.PipelineStatus {
	case domain.StatusUnprocessed:
		return uc.runExtraction(ctx, doc, src)
	case domain.StatusNeedsClassification:
		return uc.runClassification(ctx, doc, src, domain.StatusProcessed)
	case domain.StatusNeedsReprocessing:
		return uc.runReprocessing(ctx, doc, src)
	default:
		uc.log.Debug("pipeline.no_action",
			"document_id", doc.ID,
			"status", string(doc.PipelineStatus))
		return nil
	}
}

// Process advances the document until it reaches a resting status. It
// is what batch runs and queue workers invoke per document.
func (uc *PipelineUseCase) Process(ctx context.Context, documentID string) error {
	for i := 0; i < maxAdvancesPerRun; i++ {
		doc, err := uc.documents.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		if doc.PipelineStatus.Complete() || doc.PipelineStatus.Terminal() {
			return nil
		}
		if err := uc.Advance(ctx, documentID); err != nil {
			return err
		}
	}
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.PipelineStatus.Complete() || doc.PipelineStatus.Terminal() {
		return nil
	}
	return domain.WrapError(domain.ErrInvalidTransition, "process document",
		fmt.Errorf("status %s after %d transitions", doc.PipelineStatus, maxAdvancesPerRun))
}

// MarkForReprocessing moves a settled document back into the
// reprocessing branch. Only processed, needsClassification and
// reprocessingDone documents are eligible.
func (uc *PipelineUseCase) MarkForReprocessing(ctx context.Context, documentID, reason string) error {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Orphaned() {
		return domain.WrapError(domain.ErrDocumentOrphaned, "mark for reprocessing",
			fmt.Errorf("document %s is orphaned", doc.ID))
	}
	if !doc.PipelineStatus.CanTransition(domain.StatusNeedsReprocessing) {
		return domain.WrapError(domain.ErrInvalidTransition, "mark for reprocessing",
			fmt.Errorf("%s -> %s", doc.PipelineStatus, domain.StatusNeedsReprocessing))
	}

	meta := doc.ClassificationMetadata
	meta.ReprocessReason = reason
	meta.ReclassificationSkipped = false
	if err := uc.documents.UpdateStatus(ctx, doc.ID, domain.StatusNeedsReprocessing, meta); err != nil {
		return fmt.Errorf("set status=needsReprocessing: %w", err)
	}
	if err := uc.sources.SetNeedsReprocessing(ctx, doc.SourceID, true); err != nil {
		uc.log.Warn("pipeline.source_flag_update_failed",
			"source_id", doc.SourceID,
			"error", err)
	}
	uc.log.Info("pipeline.marked_for_reprocessing",
		"document_id", doc.ID,
		"reason", reason)
	return nil
}

// load fetches the document together with its source record and runs
// the orphan check. A missing or soft-deleted source flags the
// document as orphaned and surfaces ErrDocumentOrphaned.
func (uc *PipelineUseCase) load(ctx context.Context, documentID string) (*domain.ExpertDocument, *domain.SourceRecord, error) {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Orphaned() {
		return nil, nil, domain.WrapError(domain.ErrDocumentOrphaned, "load document",
			fmt.Errorf("document %s flagged orphaned", doc.ID))
	}

	src, err := uc.sources.GetByID(ctx, doc.SourceID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, nil, uc.markOrphaned(ctx, doc, "source record missing")
		}
		return nil, nil, fmt.Errorf("fetch source record: %w", err)
	}
	if src.IsDeleted {
		return nil, nil, uc.markOrphaned(ctx, doc, "source record deleted")
	}
	return doc, src, nil
}

func (uc *PipelineUseCase) markOrphaned(ctx context.Context, doc *domain.ExpertDocument, reason string) error {
	orphanErr := domain.WrapError(domain.ErrDocumentOrphaned, "load source", errors.New(reason))
	if err := uc.documents.MarkOrphaned(ctx, doc.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w; flag orphan: %v", orphanErr, err)
	}
	uc.log.Warn("pipeline.document_orphaned",
		"document_id", doc.ID,
		"source_id", doc.SourceID,
		"reason", reason)
	return orphanErr
}

func (uc *PipelineUseCase) shouldSkip(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	for _, prefix := range uc.cfg.SkipMimePrefixes {
		p := strings.ToLower(strings.TrimSpace(prefix))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(mt, p) {
				return true
			}
			continue
		}
		if mt == p {
			return true
		}
	}
	return false
}

func (uc *PipelineUseCase) markSkipped(ctx context.Context, doc *domain.ExpertDocument, src *domain.SourceRecord) error {
	if !doc.PipelineStatus.CanTransition(domain.StatusSkipProcessing) {
		return domain.WrapError(domain.ErrInvalidTransition, "skip document",
			fmt.Errorf("%s -> %s", doc.PipelineStatus, domain.StatusSkipProcessing))
	}
	meta := doc.ClassificationMetadata
	meta.SkipReason = fmt.Sprintf("mime type %s is not handled by the text pipeline", src.MimeType)
	if err := uc.documents.UpdateStatus(ctx, doc.ID, domain.StatusSkipProcessing, meta); err != nil {
		return fmt.Errorf("set status=skipProcessing: %w", err)
	}
	uc.log.Info("pipeline.skip_processing",
		"document_id", doc.ID,
		"mime_type", src.MimeType)
	return nil
}

// runExtraction is the unprocessed -> needsClassification stage: fetch
// the source bytes, extract text and the content hash, persist both.
// Failures leave the status untouched so the next run retries.
func (uc *PipelineUseCase) runExtraction(ctx context.Context, doc *domain.ExpertDocument, src *domain.SourceRecord) error {
	res, err := uc.extractContent(ctx, src)
	if err != nil {
		return uc.recordFailure(ctx, doc, err)
	}

	doc.RawContent = res.RawContent
	doc.ContentHash = res.ContentHash
	meta := doc.ClassificationMetadata
	meta.LastError = ""
	doc.ClassificationMetadata = meta
	if err := uc.transition(doc, domain.StatusNeedsClassification); err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := uc.documents.Update(ctx, doc); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}

	uc.log.Info("pipeline.extracted",
		"document_id", doc.ID,
		"mime_type", src.MimeType,
		"content_chars", len(res.RawContent),
		"content_hash", res.ContentHash)
	return nil
}

func (uc *PipelineUseCase) extractContent(ctx context.Context, src *domain.SourceRecord) (domain.ExtractionResult, error) {
	data, err := uc.content.Fetch(ctx, src)
	if err != nil {
		return domain.ExtractionResult{}, domain.NewExtractionError(src.MimeType, "fetch source bytes", err)
	}
	return uc.extractor.Extract(ctx, data, src.MimeType)
}

// runClassification is the needsClassification -> processed stage (and
// the classifying half of reprocessing, with successStatus set to
// reprocessingDone). On failure the existing type, confidence and
// processed content are left exactly as they were.
func (uc *PipelineUseCase) runClassification(ctx context.Context, doc *domain.ExpertDocument, src *domain.SourceRecord, successStatus domain.PipelineStatus) error {
	if strings.TrimSpace(doc.RawContent) == "" {
		err := domain.WrapError(domain.ErrInvalidInput, "classify document",
			errors.New("document has no extracted content"))
		return uc.recordFailure(ctx, doc, err)
	}

	content, truncated := truncateForClassification(doc.RawContent, uc.cfg.ClassifyMaxChars)
	if truncated {
		uc.log.Warn("pipeline.content_truncated",
			"document_id", doc.ID,
			"sent_chars", len(content),
			"total_chars", len(doc.RawContent))
	}

	if err := uc.gate.Acquire(ctx); err != nil {
		return uc.recordFailure(ctx, doc, fmt.Errorf("rate limit: %w", err))
	}

	candidates, err := uc.resolver.Candidates(ctx)
	if err != nil {
		return uc.recordFailure(ctx, doc, err)
	}

	verdict, err := uc.classifier.Classify(ctx, content, candidates)
	if err != nil {
		return uc.recordFailure(ctx, doc, err)
	}

	resolution, err := uc.resolver.Resolve(ctx, verdict.DocumentType, src)
	if err != nil {
		return uc.recordFailure(ctx, doc, err)
	}

	now := time.Now().UTC()
	meta := doc.ClassificationMetadata
	meta.Reasoning = verdict.Reasoning
	meta.Model = uc.cfg.ModelName
	meta.ClassifiedAt = &now
	meta.Truncated = truncated
	meta.LastError = ""
	meta.UnmatchedLabel = resolution.UnmatchedLabel
	meta.OverriddenTypeID = resolution.OverriddenTypeID
	meta.OverrideRule = resolution.OverrideRule
	meta.ReclassificationSkipped = false
	doc.ClassificationMetadata = meta

	doc.DocumentTypeID = resolution.TypeID
	if resolution.TypeID != nil && resolution.ClassifierChosen {
		conf := verdict.Confidence
		doc.ClassificationConfidence = &conf
	} else {
		doc.ClassificationConfidence = nil
	}
	doc.ProcessedContent = &domain.ProcessedContent{
		Summary:    verdict.Reasoning,
		Confidence: verdict.Confidence,
	}

	if err := uc.transition(doc, successStatus); err != nil {
		return err
	}
	doc.UpdatedAt = now
	if err := uc.documents.Update(ctx, doc); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}

	if resolution.TypeID != nil {
		if err := uc.sources.UpdateDocumentType(ctx, src.ID, *resolution.TypeID); err != nil {
			uc.log.Warn("pipeline.source_type_update_failed",
				"source_id", src.ID,
				"error", err)
		}
	}

	uc.log.Info("pipeline.classified",
		"document_id", doc.ID,
		"status", string(doc.PipelineStatus),
		"document_type", verdict.DocumentType,
		"confidence", verdict.Confidence,
		"truncated", truncated)
	return nil
}

// runReprocessing re-extracts the source and, when the content hash is
// unchanged and a prior classification exists, settles the document
// without another classifier call.
func (uc *PipelineUseCase) runReprocessing(ctx context.Context, doc *domain.ExpertDocument, src *domain.SourceRecord) error {
	res, err := uc.extractContent(ctx, src)
	if err != nil {
		return uc.recordFailure(ctx, doc, err)
	}

	if doc.ContentHash != "" && res.ContentHash == doc.ContentHash && doc.ClassificationMetadata.ClassifiedAt != nil {
		meta := doc.ClassificationMetadata
		meta.ReclassificationSkipped = true
		meta.LastError = ""
		doc.ClassificationMetadata = meta
		if err := uc.transition(doc, domain.StatusReprocessingDone); err != nil {
			return err
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := uc.documents.Update(ctx, doc); err != nil {
			return fmt.Errorf("save reprocessing result: %w", err)
		}
		uc.clearReprocessFlag(ctx, src)
		uc.log.Info("pipeline.reclassification_skipped",
			"document_id", doc.ID,
			"content_hash", doc.ContentHash)
		return nil
	}

	doc.RawContent = res.RawContent
	doc.ContentHash = res.ContentHash
	if err := uc.runClassification(ctx, doc, src, domain.StatusReprocessingDone); err != nil {
		return err
	}
	uc.clearReprocessFlag(ctx, src)
	return nil
}

func (uc *PipelineUseCase) clearReprocessFlag(ctx context.Context, src *domain.SourceRecord) {
	if err := uc.sources.SetNeedsReprocessing(ctx, src.ID, false); err != nil {
		uc.log.Warn("pipeline.source_flag_update_failed",
			"source_id", src.ID,
			"error", err)
	}
}

func (uc *PipelineUseCase) transition(doc *domain.ExpertDocument, next domain.PipelineStatus) error {
	if !doc.PipelineStatus.CanTransition(next) {
		return domain.WrapError(domain.ErrInvalidTransition, "advance status",
			fmt.Errorf("%s -> %s", doc.PipelineStatus, next))
	}
	doc.PipelineStatus = next
	return nil
}

// recordFailure stores the failure note in classification metadata
// without changing the pipeline status, then hands the original error
// back to the caller. A cancelled context skips the write so shutdown
// does not race the store.
func (uc *PipelineUseCase) recordFailure(ctx context.Context, doc *domain.ExpertDocument, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	meta := doc.ClassificationMetadata
	meta.LastError = cause.Error()
	if err := uc.documents.UpdateStatus(ctx, doc.ID, doc.PipelineStatus, meta); err != nil {
		return fmt.Errorf("%w; record failure note: %v", cause, err)
	}
	uc.log.Warn("pipeline.stage_failed",
		"document_id", doc.ID,
		"status", string(doc.PipelineStatus),
		"error", cause)
	return cause
}

// truncateForClassification cuts text to at most maxChars bytes,
// backing up to a rune boundary so the result is still valid UTF-8.
func truncateForClassification(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(text) <= maxChars {
		return text, false
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}
