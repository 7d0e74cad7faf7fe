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

type SourceRepository struct {
	store *Store
}

func NewSourceRepository(store *Store) *SourceRepository {
	return &SourceRepository{store: store}
}

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.SourceRecord, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(`
SELECT id, name, mime_type, path_hint, document_type_id, is_deleted, needs_reprocessing, metadata, created_at, updated_at
FROM sources
WHERE id = $1
`), id)

	var rec domain.SourceRecord
	var typeID sql.NullString
	var metaRaw []byte

	err := row.Scan(
		&rec.ID, &rec.Name, &rec.MimeType, &rec.PathHint, &typeID,
		&rec.IsDeleted, &rec.NeedsReprocessing, &metaRaw, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get source record", fmt.Errorf("source %s", id))
		}
		return nil, fmt.Errorf("scan source record: %w", err)
	}

	if typeID.Valid {
		rec.DocumentTypeID = &typeID.String
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal source metadata: %w", err)
		}
	}
	return &rec, nil
}

// Upsert inserts or refreshes a source record. A nil incoming document
// type never clears one the pipeline already resolved.
func (r *SourceRepository) Upsert(ctx context.Context, rec *domain.SourceRecord) error {
	metaJSON := []byte(`{}`)
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal source metadata: %w", err)
		}
		metaJSON = b
	}

	var typeID any
	if rec.DocumentTypeID != nil {
		typeID = *rec.DocumentTypeID
	}

	_, err := r.store.db.ExecContext(ctx, r.store.rebind(`
INSERT INTO sources (
	id, name, mime_type, path_hint, document_type_id, is_deleted, needs_reprocessing, metadata, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	mime_type = EXCLUDED.mime_type,
	path_hint = EXCLUDED.path_hint,
	document_type_id = COALESCE(EXCLUDED.document_type_id, sources.document_type_id),
	is_deleted = EXCLUDED.is_deleted,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
`),
		rec.ID, rec.Name, rec.MimeType, rec.PathHint, typeID,
		rec.IsDeleted, rec.NeedsReprocessing, metaJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert source record: %w", err)
	}
	return nil
}

func (r *SourceRepository) UpdateDocumentType(ctx context.Context, id, documentTypeID string) error {
	res, err := r.store.db.ExecContext(ctx, r.store.rebind(`
UPDATE sources
SET document_type_id = $2, updated_at = $3
WHERE id = $1
`), id, documentTypeID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update source document type: %w", err)
	}
	return requireRow(res, "update source document type", id)
}

func (r *SourceRepository) SetNeedsReprocessing(ctx context.Context, id string, flag bool) error {
	res, err := r.store.db.ExecContext(ctx, r.store.rebind(`
UPDATE sources
SET needs_reprocessing = $2, updated_at = $3
WHERE id = $1
`), id, flag, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update source reprocess flag: %w", err)
	}
	return requireRow(res, "update source reprocess flag", id)
}

// requireRow turns a zero-row update into the not-found kind.
func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("id %s", id))
	}
	return nil
}
