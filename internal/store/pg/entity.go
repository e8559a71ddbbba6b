package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hindsightdb/hindsight/internal/annindex"
	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Store) InsertEntity(ctx context.Context, bankID string, e model.Entity) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO entities (id, bank_id, canonical_name, normalized_name, type, embedding, aliases)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, bankID, e.CanonicalName, normalizeName(e.CanonicalName), string(e.Type), e.Embedding, e.Aliases)
	if err != nil {
		return fmt.Errorf("pg: insert entity: %w", err)
	}
	if s.ann != nil && len(e.Embedding) > 0 {
		coll := entitiesCollection(bankID)
		if err := s.ann.EnsureCollection(ctx, coll, len(e.Embedding)); err != nil {
			return fmt.Errorf("pg: ensure entities collection: %w", err)
		}
		if err := s.ann.Upsert(ctx, coll, []annindex.Point{{ID: e.ID, Vector: e.Embedding}}); err != nil {
			return fmt.Errorf("pg: upsert entity vector: %w", err)
		}
	}
	return nil
}

func (s *Store) GetEntitiesByIDs(ctx context.Context, bankID string, ids []string) ([]model.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, bank_id, canonical_name, type, embedding, aliases
		FROM entities WHERE bank_id = $1 AND id = ANY($2)
	`, bankID, ids)
	if err != nil {
		return nil, fmt.Errorf("pg: get entities by ids: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var t string
		if err := rows.Scan(&e.ID, &e.BankID, &e.CanonicalName, &t, &e.Embedding, &e.Aliases); err != nil {
			return nil, fmt.Errorf("pg: scan entity: %w", err)
		}
		e.Type = model.EntityType(t)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetEntityByNormalizedName(ctx context.Context, bankID, normalizedName string, t model.EntityType) (*model.Entity, error) {
	var e model.Entity
	var typ string
	err := s.db.QueryRow(ctx, `
		SELECT id, bank_id, canonical_name, type, embedding, aliases
		FROM entities WHERE bank_id = $1 AND normalized_name = $2 AND type = $3
	`, bankID, normalizeName(normalizedName), string(t)).Scan(&e.ID, &e.BankID, &e.CanonicalName, &typ, &e.Embedding, &e.Aliases)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "entity not found: "+normalizedName)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get entity by normalized name: %w", err)
	}
	e.Type = model.EntityType(typ)
	return &e, nil
}

func (s *Store) VectorSearchEntities(ctx context.Context, bankID string, embedding []float32, k int, t model.EntityType) ([]store.ScoredEntity, error) {
	if s.ann == nil || len(embedding) == 0 {
		return nil, nil
	}
	hits, err := s.ann.Search(ctx, entitiesCollection(bankID), embedding, k)
	if err != nil {
		return nil, fmt.Errorf("pg: vector search entities: %w", err)
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
		SELECT id, bank_id, canonical_name, type, embedding, aliases
		FROM entities WHERE bank_id = $1 AND id = ANY($2) AND type = $3
	`, bankID, ids, string(t))
	if err != nil {
		return nil, fmt.Errorf("pg: fetch entities by ids: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredEntity
	for rows.Next() {
		var e model.Entity
		var typ string
		if err := rows.Scan(&e.ID, &e.BankID, &e.CanonicalName, &typ, &e.Embedding, &e.Aliases); err != nil {
			return nil, fmt.Errorf("pg: scan entity: %w", err)
		}
		e.Type = model.EntityType(typ)
		out = append(out, store.ScoredEntity{Entity: e, Score: scoreByID[e.ID]})
	}
	return out, rows.Err()
}

func (s *Store) LinkUnitsToEntities(ctx context.Context, bankID string, pairs []model.UnitEntityLink) error {
	for _, p := range pairs {
		_, err := s.db.Exec(ctx, `
			INSERT INTO unit_entities (unit_id, entity_id) VALUES ($1, $2)
			ON CONFLICT (unit_id, entity_id) DO NOTHING
		`, p.UnitID, p.EntityID)
		if err != nil {
			return fmt.Errorf("pg: link unit to entity: %w", err)
		}
	}
	return nil
}

func (s *Store) EntitiesForUnit(ctx context.Context, bankID, unitID string) ([]model.Entity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT e.id, e.bank_id, e.canonical_name, e.type, e.embedding, e.aliases
		FROM entities e JOIN unit_entities ue ON ue.entity_id = e.id
		WHERE e.bank_id = $1 AND ue.unit_id = $2
	`, bankID, unitID)
	if err != nil {
		return nil, fmt.Errorf("pg: entities for unit: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var t string
		if err := rows.Scan(&e.ID, &e.BankID, &e.CanonicalName, &t, &e.Embedding, &e.Aliases); err != nil {
			return nil, fmt.Errorf("pg: scan entity: %w", err)
		}
		e.Type = model.EntityType(t)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UnitsForEntity(ctx context.Context, bankID, entityID, excludeUnitID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ue.unit_id FROM unit_entities ue
		JOIN memory_units u ON u.id = ue.unit_id
		WHERE u.bank_id = $1 AND ue.entity_id = $2 AND ue.unit_id != $3
	`, bankID, entityID, excludeUnitID)
	if err != nil {
		return nil, fmt.Errorf("pg: units for entity: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pg: scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
