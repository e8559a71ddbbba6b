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

func (s *Store) CreateBank(ctx context.Context, bank model.Bank) error {
	disp, err := json.Marshal(bank.Disposition)
	if err != nil {
		return fmt.Errorf("pg: marshal disposition: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO banks (bank_id, name, mission, disposition) VALUES ($1, $2, $3, $4)`,
		bank.BankID, bank.Name, bank.Mission, disp)
	if err != nil {
		return fmt.Errorf("pg: create bank: %w", err)
	}
	return nil
}

func (s *Store) GetBank(ctx context.Context, bankID string) (*model.Bank, error) {
	var b model.Bank
	var disp []byte
	err := s.db.QueryRow(ctx, `SELECT bank_id, name, mission, disposition, created_at FROM banks WHERE bank_id = $1`, bankID).
		Scan(&b.BankID, &b.Name, &b.Mission, &disp, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get bank: %w", err)
	}
	if len(disp) > 0 {
		if err := json.Unmarshal(disp, &b.Disposition); err != nil {
			return nil, fmt.Errorf("pg: unmarshal disposition: %w", err)
		}
	}
	return &b, nil
}

func (s *Store) SetBankMission(ctx context.Context, bankID, mission string) error {
	tag, err := s.db.Exec(ctx, `UPDATE banks SET mission = $2 WHERE bank_id = $1`, bankID, mission)
	if err != nil {
		return fmt.Errorf("pg: set mission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	return nil
}

func (s *Store) SetBankDisposition(ctx context.Context, bankID string, d model.Disposition) error {
	disp, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("pg: marshal disposition: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE banks SET disposition = $2 WHERE bank_id = $1`, bankID, disp)
	if err != nil {
		return fmt.Errorf("pg: set disposition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	return nil
}

func (s *Store) DeleteBank(ctx context.Context, bankID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM banks WHERE bank_id = $1`, bankID)
	if err != nil {
		return fmt.Errorf("pg: delete bank: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	return nil
}
