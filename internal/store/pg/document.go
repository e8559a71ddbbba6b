package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
)

func (s *Store) UpsertDocument(ctx context.Context, bankID string, doc model.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("pg: marshal document metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, bank_id, original_text, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			original_text = EXCLUDED.original_text,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, doc.ID, bankID, doc.OriginalText, meta)
	if err != nil {
		return fmt.Errorf("pg: upsert document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, bankID, documentID string) (*model.Document, error) {
	var d model.Document
	var meta []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, bank_id, original_text, metadata, created_at, updated_at
		FROM documents WHERE bank_id = $1 AND id = $2
	`, bankID, documentID).Scan(&d.ID, &d.BankID, &d.OriginalText, &meta, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "document not found: "+documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get document: %w", err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &d.Metadata)
	}
	return &d, nil
}

func (s *Store) DeleteDocument(ctx context.Context, bankID, documentID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE bank_id = $1 AND id = $2`, bankID, documentID)
	if err != nil {
		return fmt.Errorf("pg: delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "document not found: "+documentID)
	}
	return nil
}
