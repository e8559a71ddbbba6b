package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
)

func (s *Store) CreateDirective(ctx context.Context, d model.Directive) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO directives (id, bank_id, name, content, priority, is_active, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, d.ID, d.BankID, d.Name, d.Content, d.Priority, d.IsActive, d.Tags)
	if err != nil {
		return fmt.Errorf("pg: create directive: %w", err)
	}
	return nil
}

func (s *Store) GetDirective(ctx context.Context, bankID, id string) (*model.Directive, error) {
	var d model.Directive
	err := s.db.QueryRow(ctx, `
		SELECT id, bank_id, name, content, priority, is_active, tags, created_at, updated_at
		FROM directives WHERE bank_id = $1 AND id = $2
	`, bankID, id).Scan(&d.ID, &d.BankID, &d.Name, &d.Content, &d.Priority, &d.IsActive, &d.Tags, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "directive not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get directive: %w", err)
	}
	return &d, nil
}

func (s *Store) UpdateDirective(ctx context.Context, d model.Directive) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE directives SET name = $3, content = $4, priority = $5, is_active = $6, tags = $7, updated_at = now()
		WHERE bank_id = $1 AND id = $2
	`, d.BankID, d.ID, d.Name, d.Content, d.Priority, d.IsActive, d.Tags)
	if err != nil {
		return fmt.Errorf("pg: update directive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "directive not found: "+d.ID)
	}
	return nil
}

func (s *Store) DeleteDirective(ctx context.Context, bankID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM directives WHERE bank_id = $1 AND id = $2`, bankID, id)
	if err != nil {
		return fmt.Errorf("pg: delete directive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "directive not found: "+id)
	}
	return nil
}

// ListActiveDirectives returns active directives tag-filtered (any-match,
// or all directives when tags is empty) ordered by priority descending
// then created_at ascending.
func (s *Store) ListActiveDirectives(ctx context.Context, bankID string, tags []string) ([]model.Directive, error) {
	var rows pgx.Rows
	var err error
	if len(tags) == 0 {
		rows, err = s.db.Query(ctx, `
			SELECT id, bank_id, name, content, priority, is_active, tags, created_at, updated_at
			FROM directives WHERE bank_id = $1 AND is_active = true
			ORDER BY priority DESC, created_at ASC
		`, bankID)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT id, bank_id, name, content, priority, is_active, tags, created_at, updated_at
			FROM directives WHERE bank_id = $1 AND is_active = true AND tags && $2
			ORDER BY priority DESC, created_at ASC
		`, bankID, tags)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: list active directives: %w", err)
	}
	defer rows.Close()

	var out []model.Directive
	for rows.Next() {
		var d model.Directive
		if err := rows.Scan(&d.ID, &d.BankID, &d.Name, &d.Content, &d.Priority, &d.IsActive, &d.Tags, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan directive: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
