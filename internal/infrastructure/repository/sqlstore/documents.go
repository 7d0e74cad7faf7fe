package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

const documentColumns = `id, source_id, document_type_id, raw_content, processed_content, classification_metadata, classification_confidence, pipeline_status, content_hash, orphaned_at, created_at, updated_at`

// defaultListLimit bounds list queries when the caller passes no limit.
const defaultListLimit = 1000

type ExpertDocumentRepository struct {
	store *Store
}

func NewExpertDocumentRepository(store *Store) *ExpertDocumentRepository {
	return &ExpertDocumentRepository{store: store}
}

func (r *ExpertDocumentRepository) Create(ctx context.Context, doc *domain.ExpertDocument) error {
	processed, meta, err := marshalDocumentJSON(doc)
	if err != nil {
		return err
	}

	_, err = r.store.db.ExecContext(ctx, r.store.rebind(`
INSERT INTO expert_documents (
	`+documentColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`),
		doc.ID, doc.SourceID, nullable(doc.DocumentTypeID), doc.RawContent, processed, meta,
		nullable(doc.ClassificationConfidence), string(doc.PipelineStatus), doc.ContentHash,
		nullable(doc.OrphanedAt), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert expert document: %w", err)
	}
	return nil
}

func (r *ExpertDocumentRepository) GetByID(ctx context.Context, id string) (*domain.ExpertDocument, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(`
SELECT `+documentColumns+`
FROM expert_documents
WHERE id = $1
`), id)

	doc, err := scanExpertDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get expert document", fmt.Errorf("document %s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *ExpertDocumentRepository) GetBySourceID(ctx context.Context, sourceID string) (*domain.ExpertDocument, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(`
SELECT `+documentColumns+`
FROM expert_documents
WHERE source_id = $1
ORDER BY created_at DESC
LIMIT 1
`), sourceID)

	doc, err := scanExpertDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get expert document by source", fmt.Errorf("source %s", sourceID))
		}
		return nil, err
	}
	return doc, nil
}

func (r *ExpertDocumentRepository) Update(ctx context.Context, doc *domain.ExpertDocument) error {
	processed, meta, err := marshalDocumentJSON(doc)
	if err != nil {
		return err
	}

	res, err := r.store.db.ExecContext(ctx, r.store.rebind(`
UPDATE expert_documents
SET document_type_id = $2,
	raw_content = $3,
	processed_content = $4,
	classification_metadata = $5,
	classification_confidence = $6,
	pipeline_status = $7,
	content_hash = $8,
	orphaned_at = $9,
	updated_at = $10
WHERE id = $1
`),
		doc.ID, nullable(doc.DocumentTypeID), doc.RawContent, processed, meta,
		nullable(doc.ClassificationConfidence), string(doc.PipelineStatus), doc.ContentHash,
		nullable(doc.OrphanedAt), doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update expert document: %w", err)
	}
	return requireRow(res, "update expert document", doc.ID)
}

func (r *ExpertDocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.PipelineStatus, meta domain.ClassificationMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal classification metadata: %w", err)
	}

	res, err := r.store.db.ExecContext(ctx, r.store.rebind(`
UPDATE expert_documents
SET pipeline_status = $2, classification_metadata = $3, updated_at = $4
WHERE id = $1
`), id, string(status), metaJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRow(res, "update document status", id)
}

func (r *ExpertDocumentRepository) MarkOrphaned(ctx context.Context, id string, at time.Time) error {
	res, err := r.store.db.ExecContext(ctx, r.store.rebind(`
UPDATE expert_documents
SET orphaned_at = $2, updated_at = $3
WHERE id = $1
`), id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document orphaned: %w", err)
	}
	return requireRow(res, "mark document orphaned", id)
}

// ListByStatus returns non-orphaned documents in the given status,
// oldest first.
func (r *ExpertDocumentRepository) ListByStatus(ctx context.Context, status domain.PipelineStatus, limit int) ([]domain.ExpertDocument, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(`
SELECT `+documentColumns+`
FROM expert_documents
WHERE pipeline_status = $1 AND orphaned_at IS NULL
ORDER BY created_at ASC
LIMIT $2
`), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (r *ExpertDocumentRepository) ListOrphaned(ctx context.Context, limit int) ([]domain.ExpertDocument, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(`
SELECT `+documentColumns+`
FROM expert_documents
WHERE orphaned_at IS NOT NULL
ORDER BY orphaned_at DESC
LIMIT $1
`), limit)
	if err != nil {
		return nil, fmt.Errorf("list orphaned documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// CountByStatus tallies non-orphaned documents per status.
func (r *ExpertDocumentRepository) CountByStatus(ctx context.Context) (map[domain.PipelineStatus]int, error) {
	rows, err := r.store.db.QueryContext(ctx, `
SELECT pipeline_status, COUNT(*)
FROM expert_documents
WHERE orphaned_at IS NULL
GROUP BY pipeline_status
`)
	if err != nil {
		return nil, fmt.Errorf("count documents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.PipelineStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.PipelineStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func (r *ExpertDocumentRepository) CountOrphaned(ctx context.Context) (int, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM expert_documents
WHERE orphaned_at IS NOT NULL
`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orphaned documents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpertDocument(row rowScanner) (*domain.ExpertDocument, error) {
	var (
		doc        domain.ExpertDocument
		typeID     sql.NullString
		processed  []byte
		metaRaw    []byte
		confidence sql.NullFloat64
		status     string
		orphanedAt sql.NullTime
	)

	err := row.Scan(
		&doc.ID, &doc.SourceID, &typeID, &doc.RawContent, &processed, &metaRaw,
		&confidence, &status, &doc.ContentHash, &orphanedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan expert document: %w", err)
	}

	if typeID.Valid {
		doc.DocumentTypeID = &typeID.String
	}
	if len(processed) > 0 {
		var pc domain.ProcessedContent
		if err := json.Unmarshal(processed, &pc); err != nil {
			return nil, fmt.Errorf("unmarshal processed content: %w", err)
		}
		doc.ProcessedContent = &pc
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &doc.ClassificationMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal classification metadata: %w", err)
		}
	}
	if confidence.Valid {
		doc.ClassificationConfidence = &confidence.Float64
	}
	doc.PipelineStatus = domain.PipelineStatus(status)
	if orphanedAt.Valid {
		ts := orphanedAt.Time
		doc.OrphanedAt = &ts
	}
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.ExpertDocument, error) {
	var out []domain.ExpertDocument
	for rows.Next() {
		doc, err := scanExpertDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func marshalDocumentJSON(doc *domain.ExpertDocument) (processed any, meta []byte, err error) {
	meta, err = json.Marshal(doc.ClassificationMetadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal classification metadata: %w", err)
	}
	if doc.ProcessedContent != nil {
		b, err := json.Marshal(doc.ProcessedContent)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal processed content: %w", err)
		}
		processed = b
	}
	return processed, meta, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
