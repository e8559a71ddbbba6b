package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hindsightdb/hindsight/internal/annindex"
	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

func (s *Store) CreateReflection(ctx context.Context, r model.Reflection) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reflections (id, bank_id, name, source_query, content, embedding, reflect_response, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, r.ID, r.BankID, r.Name, r.SourceQuery, r.Content, r.Embedding, r.ReflectResponse, r.Tags)
	if err != nil {
		return fmt.Errorf("pg: create reflection: %w", err)
	}
	if s.ann != nil && len(r.Embedding) > 0 {
		coll := reflectionsCollection(r.BankID)
		if err := s.ann.EnsureCollection(ctx, coll, len(r.Embedding)); err != nil {
			return fmt.Errorf("pg: ensure reflections collection: %w", err)
		}
		if err := s.ann.Upsert(ctx, coll, []annindex.Point{{ID: r.ID, Vector: r.Embedding}}); err != nil {
			return fmt.Errorf("pg: upsert reflection vector: %w", err)
		}
	}
	return nil
}

func (s *Store) GetReflection(ctx context.Context, bankID, id string) (*model.Reflection, error) {
	var r model.Reflection
	err := s.db.QueryRow(ctx, `
		SELECT id, bank_id, name, source_query, content, embedding, reflect_response, tags, created_at, updated_at
		FROM reflections WHERE bank_id = $1 AND id = $2
	`, bankID, id).Scan(&r.ID, &r.BankID, &r.Name, &r.SourceQuery, &r.Content, &r.Embedding, &r.ReflectResponse, &r.Tags, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "reflection not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get reflection: %w", err)
	}
	return &r, nil
}

func (s *Store) UpdateReflection(ctx context.Context, r model.Reflection) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE reflections SET name = $3, source_query = $4, content = $5, embedding = $6,
			reflect_response = $7, tags = $8, updated_at = now()
		WHERE bank_id = $1 AND id = $2
	`, r.BankID, r.ID, r.Name, r.SourceQuery, r.Content, r.Embedding, r.ReflectResponse, r.Tags)
	if err != nil {
		return fmt.Errorf("pg: update reflection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "reflection not found: "+r.ID)
	}
	if s.ann != nil && len(r.Embedding) > 0 {
		coll := reflectionsCollection(r.BankID)
		if err := s.ann.Upsert(ctx, coll, []annindex.Point{{ID: r.ID, Vector: r.Embedding}}); err != nil {
			return fmt.Errorf("pg: upsert reflection vector: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteReflection(ctx context.Context, bankID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM reflections WHERE bank_id = $1 AND id = $2`, bankID, id)
	if err != nil {
		return fmt.Errorf("pg: delete reflection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "reflection not found: "+id)
	}
	if s.ann != nil {
		if err := s.ann.Delete(ctx, reflectionsCollection(bankID), []string{id}); err != nil {
			return fmt.Errorf("pg: delete reflection vector: %w", err)
		}
	}
	return nil
}

func (s *Store) ListReflections(ctx context.Context, bankID string, tags []string) ([]model.Reflection, error) {
	var rows pgx.Rows
	var err error
	if len(tags) == 0 {
		rows, err = s.db.Query(ctx, `
			SELECT id, bank_id, name, source_query, content, embedding, reflect_response, tags, created_at, updated_at
			FROM reflections WHERE bank_id = $1 ORDER BY created_at DESC
		`, bankID)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT id, bank_id, name, source_query, content, embedding, reflect_response, tags, created_at, updated_at
			FROM reflections WHERE bank_id = $1 AND tags && $2 ORDER BY created_at DESC
		`, bankID, tags)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: list reflections: %w", err)
	}
	defer rows.Close()

	var out []model.Reflection
	for rows.Next() {
		var r model.Reflection
		if err := rows.Scan(&r.ID, &r.BankID, &r.Name, &r.SourceQuery, &r.Content, &r.Embedding, &r.ReflectResponse, &r.Tags, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan reflection: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) VectorSearchReflections(ctx context.Context, bankID string, embedding []float32, k int, tags []string) ([]store.ScoredReflection, error) {
	if s.ann == nil || len(embedding) == 0 {
		return nil, nil
	}
	hits, err := s.ann.Search(ctx, reflectionsCollection(bankID), embedding, k)
	if err != nil {
		return nil, fmt.Errorf("pg: vector search reflections: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scoreByID := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = float64(h.Score)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, bank_id, name, source_query, content, embedding, reflect_response, tags, created_at, updated_at
		FROM reflections WHERE bank_id = $1 AND id = ANY($2)
	`, bankID, ids)
	if err != nil {
		return nil, fmt.Errorf("pg: fetch reflections by ids: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredReflection
	for rows.Next() {
		var r model.Reflection
		if err := rows.Scan(&r.ID, &r.BankID, &r.Name, &r.SourceQuery, &r.Content, &r.Embedding, &r.ReflectResponse, &r.Tags, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan reflection: %w", err)
		}
		if len(tags) > 0 && !tagsOverlap(r.Tags, tags) {
			continue
		}
		out = append(out, store.ScoredReflection{Reflection: r, Score: scoreByID[r.ID]})
	}
	return out, rows.Err()
}

func tagsOverlap(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}
