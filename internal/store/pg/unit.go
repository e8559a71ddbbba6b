package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hindsightdb/hindsight/internal/annindex"
	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

const unitColumns = `id, bank_id, text, fact_type, context, created_at, event_date, occurred_start,
	occurred_end, mentioned_at, consolidated_at, document_id, embedding, tags, metadata,
	proof_count, source_memory_ids, history`

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows
// (Query), letting scanUnit serve both call shapes.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUnit scans exactly the columns in unitColumns, in order. extra
// receives any additional SELECT-list values appended after those columns
// (e.g. a ts_rank score).
func scanUnit(row rowScanner, extra ...any) (model.MemoryUnit, error) {
	var u model.MemoryUnit
	var factType string
	var documentID *string
	var metaBytes, historyBytes []byte
	dest := []any{&u.ID, &u.BankID, &u.Text, &factType, &u.Context, &u.CreatedAt,
		&u.EventDate, &u.OccurredStart, &u.OccurredEnd, &u.MentionedAt, &u.ConsolidatedAt,
		&documentID, &u.Embedding, &u.Tags, &metaBytes, &u.ProofCount, &u.SourceMemoryIDs, &historyBytes}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return u, err
	}
	u.FactType = model.FactType(factType)
	if documentID != nil {
		u.DocumentID = *documentID
	}
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &u.Metadata)
	}
	if len(historyBytes) > 0 {
		_ = json.Unmarshal(historyBytes, &u.History)
	}
	return u, nil
}

func (s *Store) InsertUnits(ctx context.Context, bankID string, units []model.MemoryUnit) error {
	for _, u := range units {
		meta, err := json.Marshal(u.Metadata)
		if err != nil {
			return fmt.Errorf("pg: marshal unit metadata: %w", err)
		}
		hist, err := json.Marshal(u.History)
		if err != nil {
			return fmt.Errorf("pg: marshal unit history: %w", err)
		}
		var documentID *string
		if u.DocumentID != "" {
			documentID = &u.DocumentID
		}

		_, err = s.db.Exec(ctx, `
			INSERT INTO memory_units (id, bank_id, text, fact_type, context, event_date, occurred_start,
				occurred_end, mentioned_at, consolidated_at, document_id, embedding, tags, metadata,
				proof_count, source_memory_ids, history)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`, u.ID, bankID, u.Text, string(u.FactType), u.Context, u.EventDate, u.OccurredStart,
			u.OccurredEnd, u.MentionedAt, u.ConsolidatedAt, documentID, u.Embedding, u.Tags, meta,
			u.ProofCount, u.SourceMemoryIDs, hist)
		if err != nil {
			return fmt.Errorf("pg: insert unit: %w", err)
		}

		if s.ann != nil && len(u.Embedding) > 0 {
			coll := unitsCollection(bankID)
			if err := s.ann.EnsureCollection(ctx, coll, len(u.Embedding)); err != nil {
				return fmt.Errorf("pg: ensure units collection: %w", err)
			}
			if err := s.ann.Upsert(ctx, coll, []annindex.Point{{ID: u.ID, Vector: u.Embedding}}); err != nil {
				return fmt.Errorf("pg: upsert unit vector: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) GetUnit(ctx context.Context, bankID, unitID string) (*model.MemoryUnit, error) {
	row := s.db.QueryRow(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE bank_id = $1 AND id = $2`, bankID, unitID)
	u, err := scanUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "unit not found: "+unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get unit: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUnitsByIDs(ctx context.Context, bankID string, unitIDs []string) ([]model.MemoryUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE bank_id = $1 AND id = ANY($2)`, bankID, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("pg: get units by ids: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

func collectUnits(rows pgx.Rows) ([]model.MemoryUnit, error) {
	var out []model.MemoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUnitsByDocument(ctx context.Context, bankID, documentID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM memory_units WHERE bank_id = $1 AND document_id = $2`, bankID, documentID)
	if err != nil {
		return fmt.Errorf("pg: delete units by document: %w", err)
	}
	return nil
}

func (s *Store) SetConsolidatedAt(ctx context.Context, bankID, unitID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE memory_units SET consolidated_at = $3 WHERE bank_id = $1 AND id = $2`, bankID, unitID, at)
	if err != nil {
		return fmt.Errorf("pg: set consolidated_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "unit not found: "+unitID)
	}
	return nil
}

// WatermarkScan returns experience/world units with consolidated_at IS
// NULL, ordered by created_at ascending.
func (s *Store) WatermarkScan(ctx context.Context, bankID string) ([]model.MemoryUnit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+unitColumns+` FROM memory_units
		WHERE bank_id = $1 AND consolidated_at IS NULL AND fact_type IN ('experience', 'world')
		ORDER BY created_at ASC
	`, bankID)
	if err != nil {
		return nil, fmt.Errorf("pg: watermark scan: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

func factTypeFilter(factTypes []model.FactType) []string {
	if len(factTypes) == 0 {
		return nil
	}
	out := make([]string, len(factTypes))
	for i, f := range factTypes {
		out[i] = string(f)
	}
	return out
}

func (s *Store) fetchUnitsFiltered(ctx context.Context, bankID string, ids []string, factTypes []model.FactType) (map[string]model.MemoryUnit, error) {
	var rows pgx.Rows
	var err error
	types := factTypeFilter(factTypes)
	if len(types) == 0 {
		rows, err = s.db.Query(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE bank_id = $1 AND id = ANY($2)`, bankID, ids)
	} else {
		rows, err = s.db.Query(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE bank_id = $1 AND id = ANY($2) AND fact_type = ANY($3)`, bankID, ids, types)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: fetch units filtered: %w", err)
	}
	defer rows.Close()

	units, err := collectUnits(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.MemoryUnit, len(units))
	for _, u := range units {
		out[u.ID] = u
	}
	return out, nil
}

// VectorSearchUnits returns the top-k units by cosine similarity, restricted
// to factTypes when non-empty.
func (s *Store) VectorSearchUnits(ctx context.Context, bankID string, embedding []float32, k int, factTypes []model.FactType) ([]store.ScoredUnit, error) {
	if s.ann == nil || len(embedding) == 0 {
		return nil, nil
	}
	hits, err := s.ann.Search(ctx, unitsCollection(bankID), embedding, k*3+10)
	if err != nil {
		return nil, fmt.Errorf("pg: vector search units: %w", err)
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

	byID, err := s.fetchUnitsFiltered(ctx, bankID, ids, factTypes)
	if err != nil {
		return nil, err
	}

	var out []store.ScoredUnit
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, store.ScoredUnit{Unit: u, Score: scoreByID[id]})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// LexicalSearchUnits ranks by Postgres full-text ts_rank against the
// generated tsvector column.
func (s *Store) LexicalSearchUnits(ctx context.Context, bankID, query string, k int, factTypes []model.FactType) ([]store.ScoredUnit, error) {
	types := factTypeFilter(factTypes)
	var rows pgx.Rows
	var err error
	if len(types) == 0 {
		rows, err = s.db.Query(ctx, `
			SELECT `+unitColumns+`, ts_rank(text_search, plainto_tsquery('english', $2)) AS score
			FROM memory_units WHERE bank_id = $1 AND text_search @@ plainto_tsquery('english', $2)
			ORDER BY score DESC LIMIT $3
		`, bankID, query, k)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+unitColumns+`, ts_rank(text_search, plainto_tsquery('english', $2)) AS score
			FROM memory_units WHERE bank_id = $1 AND text_search @@ plainto_tsquery('english', $2) AND fact_type = ANY($4)
			ORDER BY score DESC LIMIT $3
		`, bankID, query, k, types)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: lexical search units: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredUnit
	for rows.Next() {
		var score float64
		u, err := scanUnit(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("pg: scan unit: %w", err)
		}
		out = append(out, store.ScoredUnit{Unit: u, Score: score})
	}
	return out, rows.Err()
}

func (s *Store) RecentUnits(ctx context.Context, bankID string, k int, factTypes []model.FactType) ([]model.MemoryUnit, error) {
	types := factTypeFilter(factTypes)
	var rows pgx.Rows
	var err error
	if len(types) == 0 {
		rows, err = s.db.Query(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE bank_id = $1 ORDER BY created_at DESC LIMIT $2`, bankID, k)
	} else {
		rows, err = s.db.Query(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE bank_id = $1 AND fact_type = ANY($3) ORDER BY created_at DESC LIMIT $2`, bankID, k, types)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: recent units: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

func (s *Store) UnitsByEntityIDs(ctx context.Context, bankID string, entityIDs []string, factTypes []model.FactType) ([]model.MemoryUnit, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	types := factTypeFilter(factTypes)
	var rows pgx.Rows
	var err error
	if len(types) == 0 {
		rows, err = s.db.Query(ctx, `
			SELECT DISTINCT `+unitColumns+` FROM memory_units u
			JOIN unit_entities ue ON ue.unit_id = u.id
			WHERE u.bank_id = $1 AND ue.entity_id = ANY($2)
		`, bankID, entityIDs)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT DISTINCT `+unitColumns+` FROM memory_units u
			JOIN unit_entities ue ON ue.unit_id = u.id
			WHERE u.bank_id = $1 AND ue.entity_id = ANY($2) AND u.fact_type = ANY($3)
		`, bankID, entityIDs, types)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: units by entity ids: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

func (s *Store) UnitsNearTime(ctx context.Context, bankID string, center time.Time, window time.Duration, k int, excludeUnitID string) ([]model.MemoryUnit, error) {
	lo := center.Add(-window)
	hi := center.Add(window)
	rows, err := s.db.Query(ctx, `
		SELECT `+unitColumns+` FROM memory_units
		WHERE bank_id = $1 AND event_date IS NOT NULL AND event_date BETWEEN $2 AND $3 AND id != $4
		ORDER BY abs(extract(epoch FROM event_date - $5::timestamptz)) ASC
		LIMIT $6
	`, bankID, lo, hi, excludeUnitID, center, k)
	if err != nil {
		return nil, fmt.Errorf("pg: units near time: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

func (s *Store) MentalModelsByEmbedding(ctx context.Context, bankID string, embedding []float32, k int) ([]store.ScoredUnit, error) {
	return s.VectorSearchUnits(ctx, bankID, embedding, k, []model.FactType{model.FactMentalModel})
}

func (s *Store) InsertMentalModel(ctx context.Context, bankID string, unit model.MemoryUnit) error {
	return s.InsertUnits(ctx, bankID, []model.MemoryUnit{unit})
}

func (s *Store) UpdateMentalModel(ctx context.Context, bankID string, unit model.MemoryUnit) error {
	meta, err := json.Marshal(unit.Metadata)
	if err != nil {
		return fmt.Errorf("pg: marshal unit metadata: %w", err)
	}
	hist, err := json.Marshal(unit.History)
	if err != nil {
		return fmt.Errorf("pg: marshal unit history: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE memory_units SET text = $3, embedding = $4, proof_count = $5,
			source_memory_ids = $6, history = $7, metadata = $8
		WHERE bank_id = $1 AND id = $2
	`, bankID, unit.ID, unit.Text, unit.Embedding, unit.ProofCount, unit.SourceMemoryIDs, hist, meta)
	if err != nil {
		return fmt.Errorf("pg: update mental model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "mental model unit not found: "+unit.ID)
	}
	if s.ann != nil && len(unit.Embedding) > 0 {
		coll := unitsCollection(bankID)
		if err := s.ann.Upsert(ctx, coll, []annindex.Point{{ID: unit.ID, Vector: unit.Embedding}}); err != nil {
			return fmt.Errorf("pg: upsert mental model vector: %w", err)
		}
	}
	return nil
}
