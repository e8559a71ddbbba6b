package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
)

func (s *Store) CreateOperation(ctx context.Context, op model.Operation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO operations (id, bank_id, op_type, status, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, op.ID, op.BankID, string(op.Type), string(op.Status), op.Result, op.Error)
	if err != nil {
		return fmt.Errorf("pg: create operation: %w", err)
	}
	return nil
}

func (s *Store) GetOperation(ctx context.Context, bankID, id string) (*model.Operation, error) {
	var op model.Operation
	var opType, status string
	err := s.db.QueryRow(ctx, `
		SELECT id, bank_id, op_type, status, result, error, created_at, updated_at
		FROM operations WHERE bank_id = $1 AND id = $2
	`, bankID, id).Scan(&op.ID, &op.BankID, &opType, &status, &op.Result, &op.Error, &op.CreatedAt, &op.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "operation not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get operation: %w", err)
	}
	op.Type = model.OperationType(opType)
	op.Status = model.OperationStatus(status)
	return &op, nil
}

func (s *Store) UpdateOperationStatus(ctx context.Context, bankID, id string, status model.OperationStatus, result, errMsg string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE operations SET status = $3, result = $4, error = $5, updated_at = now()
		WHERE bank_id = $1 AND id = $2
	`, bankID, id, string(status), result, errMsg)
	if err != nil {
		return fmt.Errorf("pg: update operation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "operation not found: "+id)
	}
	return nil
}
