package domain

import "time"

// SourceRecord is a file discovered by the external sync collaborator. The
// pipeline treats it as read-mostly: only DocumentTypeID and the
// needsReprocessing metadata flag are ever written back.
type SourceRecord struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	MimeType       string  `json:"mime_type"`
	PathHint       string  `json:"path_hint"`
	DocumentTypeID *string `json:"document_type_id,omitempty"`
	IsDeleted      bool    `json:"is_deleted"`
	// NeedsReprocessing mirrors the pipeline's reprocess request so
	// source-side tooling can find affected records.
	NeedsReprocessing bool           `json:"needs_reprocessing"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ExpertDocument is the processing record, 1:1 with a SourceRecord. It is
// created when a source is first selected for processing and mutated only by
// the pipeline state machine.
type ExpertDocument struct {
	ID                       string                 `json:"id"`
	SourceID                 string                 `json:"source_id"`
	DocumentTypeID           *string                `json:"document_type_id,omitempty"`
	RawContent               string                 `json:"raw_content,omitempty"`
	ProcessedContent         *ProcessedContent      `json:"processed_content,omitempty"`
	ClassificationMetadata   ClassificationMetadata `json:"classification_metadata"`
	ClassificationConfidence *float64               `json:"classification_confidence,omitempty"`
	PipelineStatus           PipelineStatus         `json:"pipeline_status"`
	ContentHash              string                 `json:"content_hash,omitempty"`
	OrphanedAt               *time.Time             `json:"orphaned_at,omitempty"`
	CreatedAt                time.Time              `json:"created_at"`
	UpdatedAt                time.Time              `json:"updated_at"`
}

// Orphaned reports whether the document has been flagged as having no live
// source record.
func (d *ExpertDocument) Orphaned() bool {
	return d.OrphanedAt != nil
}

// ProcessedContent is the structured summary stored after classification.
type ProcessedContent struct {
	Summary    string   `json:"summary"`
	KeyTopics  []string `json:"key_topics,omitempty"`
	Confidence float64  `json:"confidence"`
}

// ClassificationMetadata travels with the document as a JSON column. It
// accumulates across runs: a later failure must not erase an earlier
// successful classification's reasoning.
type ClassificationMetadata struct {
	Reasoning               string     `json:"reasoning,omitempty"`
	Model                   string     `json:"model,omitempty"`
	ClassifiedAt            *time.Time `json:"classified_at,omitempty"`
	Truncated               bool       `json:"truncated,omitempty"`
	LastError               string     `json:"last_error,omitempty"`
	UnmatchedLabel          string     `json:"unmatched_label,omitempty"`
	OverriddenTypeID        string     `json:"overridden_type_id,omitempty"`
	OverrideRule            string     `json:"override_rule,omitempty"`
	ReclassificationSkipped bool       `json:"reclassification_skipped,omitempty"`
	ReprocessReason         string     `json:"reprocess_reason,omitempty"`
	SkipReason              string     `json:"skip_reason,omitempty"`
}

// DocumentType is an immutable taxonomy entry. The pipeline only reads these;
// creation and deletion are administrative actions.
type DocumentType struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// FallbackTypeName is the canonical taxonomy entry used when a classifier
// label matches nothing.
const FallbackTypeName = "unknown document type"

// Classification is the strict result of one classifier call.
type Classification struct {
	DocumentType string  `json:"documentType"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// ExtractionResult is what a content extractor produces: the text plus a
// deterministic fingerprint of it.
type ExtractionResult struct {
	RawContent  string
	ContentHash string
}
