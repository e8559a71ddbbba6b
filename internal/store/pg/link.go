package pg

import (
	"context"
	"fmt"

	"github.com/hindsightdb/hindsight/internal/model"
)

func coalesceEntityID(id string) string {
	if id == "" {
		return model.ZeroEntityID
	}
	return id
}

// UpsertLinks inserts links, treating a unique-constraint collision as
// success by keeping the max of the existing and new weight.
func (s *Store) UpsertLinks(ctx context.Context, bankID string, links []model.MemoryLink) error {
	for _, l := range links {
		_, err := s.db.Exec(ctx, `
			INSERT INTO memory_links (from_unit_id, to_unit_id, link_type, weight, entity_id, bank_id, relation)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (from_unit_id, to_unit_id, link_type, entity_id)
			DO UPDATE SET weight = GREATEST(memory_links.weight, EXCLUDED.weight)
		`, l.FromUnitID, l.ToUnitID, string(l.Type), l.Weight, coalesceEntityID(l.EntityID), bankID, string(l.Relation))
		if err != nil {
			return fmt.Errorf("pg: upsert link: %w", err)
		}
	}
	return nil
}

func (s *Store) OutgoingLinks(ctx context.Context, bankID string, unitIDs []string) ([]model.MemoryLink, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT from_unit_id, to_unit_id, link_type, weight, entity_id, relation
		FROM memory_links WHERE bank_id = $1 AND from_unit_id = ANY($2)
	`, bankID, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("pg: outgoing links: %w", err)
	}
	defer rows.Close()

	var out []model.MemoryLink
	for rows.Next() {
		var l model.MemoryLink
		var typ, relation string
		if err := rows.Scan(&l.FromUnitID, &l.ToUnitID, &typ, &l.Weight, &l.EntityID, &relation); err != nil {
			return nil, fmt.Errorf("pg: scan link: %w", err)
		}
		l.Type = model.LinkType(typ)
		l.Relation = model.CausalRelation(relation)
		if l.EntityID == model.ZeroEntityID {
			l.EntityID = ""
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
