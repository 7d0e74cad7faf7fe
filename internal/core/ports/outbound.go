package ports

import (
	"context"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// SourceRepository reads discovered source records. The pipeline writes back
// only the resolved document type and the reprocess flag.
type SourceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SourceRecord, error)
	Upsert(ctx context.Context, rec *domain.SourceRecord) error
	UpdateDocumentType(ctx context.Context, id, documentTypeID string) error
	SetNeedsReprocessing(ctx context.Context, id string, flag bool) error
}

// ExpertDocumentRepository persists processing records.
type ExpertDocumentRepository interface {
	Create(ctx context.Context, doc *domain.ExpertDocument) error
	GetByID(ctx context.Context, id string) (*domain.ExpertDocument, error)
	GetBySourceID(ctx context.Context, sourceID string) (*domain.ExpertDocument, error)
	Update(ctx context.Context, doc *domain.ExpertDocument) error
	UpdateStatus(ctx context.Context, id string, status domain.PipelineStatus, meta domain.ClassificationMetadata) error
	MarkOrphaned(ctx context.Context, id string, at time.Time) error
	ListByStatus(ctx context.Context, status domain.PipelineStatus, limit int) ([]domain.ExpertDocument, error)
	ListOrphaned(ctx context.Context, limit int) ([]domain.ExpertDocument, error)
	CountByStatus(ctx context.Context) (map[domain.PipelineStatus]int, error)
	CountOrphaned(ctx context.Context) (int, error)
}

// DocumentTypeRepository reads the taxonomy. Lookup by name is exact but
// case-insensitive; fuzzier matching lives in the resolver.
type DocumentTypeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentType, error)
	GetByName(ctx context.Context, name string) (*domain.DocumentType, error)
	List(ctx context.Context) ([]domain.DocumentType, error)
	Upsert(ctx context.Context, t *domain.DocumentType) error
}

// ContentSource fetches the bytes behind a source record.
type ContentSource interface {
	Fetch(ctx context.Context, rec *domain.SourceRecord) ([]byte, error)
}

// Extractor turns raw bytes into text plus a content hash.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (domain.ExtractionResult, error)
	Supports(mimeType string) bool
}

// Classifier calls the external model and returns its strict JSON verdict.
type Classifier interface {
	Classify(ctx context.Context, content string, candidates []domain.DocumentType) (domain.Classification, error)
}

// RateGate bounds outbound classifier calls.
type RateGate interface {
	Acquire(ctx context.Context) error
}

// MessageQueue publishes/consumes source discovery events.
type MessageQueue interface {
	PublishSourceDiscovered(ctx context.Context, sourceID string) error
	SubscribeSourceDiscovered(ctx context.Context, handler func(context.Context, string) error) error
}
