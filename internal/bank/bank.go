// Package bank implements the bank lifecycle surface: create, delete,
// mission/disposition mutation, and get-or-create profile lookup. It is a
// thin service over store.BankStore — the only behavior beyond a passthrough
// is get_bank_profile's auto-create-on-first-use semantics.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

// Service implements the bank lifecycle operations of the external
// interface.
type Service struct {
	store store.BankStore
}

// New builds a Service.
func New(s store.BankStore) *Service {
	return &Service{store: s}
}

// Create registers a new bank. name defaults to bankID when empty.
func (s *Service) Create(ctx context.Context, bankID, name, mission string, disposition model.Disposition) (*model.Bank, error) {
	if bankID == "" {
		return nil, errs.New(errs.KindInvalidInput, "bank_id is required")
	}
	if name == "" {
		name = bankID
	}
	b := model.Bank{BankID: bankID, Name: name, Mission: mission, Disposition: disposition}
	if err := s.store.CreateBank(ctx, b); err != nil {
		return nil, fmt.Errorf("bank: create: %w", err)
	}
	return s.store.GetBank(ctx, bankID)
}

// GetProfile returns the bank, auto-creating an empty one if it doesn't
// exist yet.
func (s *Service) GetProfile(ctx context.Context, bankID string) (*model.Bank, error) {
	if bankID == "" {
		return nil, errs.New(errs.KindInvalidInput, "bank_id is required")
	}
	b, err := s.store.GetBank(ctx, bankID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, errs.NotFound) {
		return nil, fmt.Errorf("bank: get profile: %w", err)
	}
	return s.Create(ctx, bankID, bankID, "", model.Disposition{Traits: map[string]float64{}})
}

// SetMission updates the bank's mission statement.
func (s *Service) SetMission(ctx context.Context, bankID, mission string) error {
	if err := s.store.SetBankMission(ctx, bankID, mission); err != nil {
		return fmt.Errorf("bank: set mission: %w", err)
	}
	return nil
}

// SetDisposition updates the bank's disposition vector.
func (s *Service) SetDisposition(ctx context.Context, bankID string, d model.Disposition) error {
	if err := s.store.SetBankDisposition(ctx, bankID, d); err != nil {
		return fmt.Errorf("bank: set disposition: %w", err)
	}
	return nil
}

// Delete removes the bank and, by cascade at the storage layer, every
// unit, link, document, reflection, directive, and operation it owns.
func (s *Service) Delete(ctx context.Context, bankID string) error {
	if err := s.store.DeleteBank(ctx, bankID); err != nil {
		return fmt.Errorf("bank: delete: %w", err)
	}
	return nil
}
