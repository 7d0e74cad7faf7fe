package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

type DocumentTypeRepository struct {
	store *Store
}

func NewDocumentTypeRepository(store *Store) *DocumentTypeRepository {
	return &DocumentTypeRepository{store: store}
}

func (r *DocumentTypeRepository) GetByID(ctx context.Context, id string) (*domain.DocumentType, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(`
SELECT id, name, category
FROM document_types
WHERE id = $1
`), id)
	return scanDocumentType(row, fmt.Sprintf("type %s", id))
}

// GetByName matches exactly but case-insensitively; label fuzziness
// beyond that is the resolver's business.
func (r *DocumentTypeRepository) GetByName(ctx context.Context, name string) (*domain.DocumentType, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(`
SELECT id, name, category
FROM document_types
WHERE LOWER(name) = LOWER($1)
`), name)
	return scanDocumentType(row, fmt.Sprintf("type named %q", name))
}

func (r *DocumentTypeRepository) List(ctx context.Context) ([]domain.DocumentType, error) {
	rows, err := r.store.db.QueryContext(ctx, `
SELECT id, name, category
FROM document_types
ORDER BY name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentType
	for rows.Next() {
		var t domain.DocumentType
		if err := rows.Scan(&t.ID, &t.Name, &t.Category); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document types: %w", err)
	}
	return out, nil
}

func (r *DocumentTypeRepository) Upsert(ctx context.Context, t *domain.DocumentType) error {
	_, err := r.store.db.ExecContext(ctx, r.store.rebind(`
INSERT INTO document_types (id, name, category)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	category = EXCLUDED.category
`), t.ID, t.Name, t.Category)
	if err != nil {
		return fmt.Errorf("upsert document type: %w", err)
	}
	return nil
}

func scanDocumentType(row *sql.Row, what string) (*domain.DocumentType, error) {
	var t domain.DocumentType
	if err := row.Scan(&t.ID, &t.Name, &t.Category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document type", errors.New(what))
		}
		return nil, fmt.Errorf("scan document type: %w", err)
	}
	return &t, nil
}
