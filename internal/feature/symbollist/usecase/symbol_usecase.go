// Package usecase implements the business logic for symbol-related operations.
package usecase

import (
	"context"
	"fmt"
	"strings"

	"forex_backend/internal/feature/symbollist/domain/entity"
)

// SymbolRepository abstracts the persistence layer for the instrument list.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
	InsertMissing(ctx context.Context, symbols []entity.Symbol) error
}

// SymbolUsecase provides business logic for symbol operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns all active symbols from the repository.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	return u.repo.ListActive(ctx)
}

// ListActiveCodes returns the codes of all active symbols in display order.
func (u *SymbolUsecase) ListActiveCodes(ctx context.Context) ([]string, error) {
	return u.repo.ListActiveCodes(ctx)
}

// EnsureSymbols registers the configured codes that are not in the list yet.
// Position in codes becomes the sort key.
func (u *SymbolUsecase) EnsureSymbols(ctx context.Context, codes []string) error {
	symbols := make([]entity.Symbol, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for i, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		symbols = append(symbols, entity.Symbol{
			Code:       code,
			Name:       code,
			AssetClass: assetClass(code),
			IsActive:   true,
			SortKey:    i,
		})
	}
	if err := u.repo.InsertMissing(ctx, symbols); err != nil {
		return fmt.Errorf("insert symbols: %w", err)
	}
	return nil
}

// assetClass guesses the class from the Twelve Data code: metals quote as XAU/XAG.
func assetClass(code string) string {
	base, _, ok := strings.Cut(code, "/")
	if !ok {
		return "other"
	}
	switch base {
	case "XAU", "XAG", "XPT", "XPD":
		return "commodity"
	case "BTC", "ETH":
		return "crypto"
	}
	return "forex"
}
