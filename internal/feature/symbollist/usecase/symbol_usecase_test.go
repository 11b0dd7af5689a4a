package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex_backend/internal/feature/symbollist/domain/entity"
	"forex_backend/internal/feature/symbollist/usecase"
)

// mockSymbolRepository はSymbolRepositoryインターフェースのモック実装です。
type mockSymbolRepository struct {
	ListActiveFunc      func(ctx context.Context) ([]entity.Symbol, error)
	ListActiveCodesFunc func(ctx context.Context) ([]string, error)
	InsertMissingFunc   func(ctx context.Context, symbols []entity.Symbol) error
}

func (m *mockSymbolRepository) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) ListActiveCodes(ctx context.Context) ([]string, error) {
	if m.ListActiveCodesFunc != nil {
		return m.ListActiveCodesFunc(ctx)
	}
	return nil, nil
}

func (m *mockSymbolRepository) InsertMissing(ctx context.Context, symbols []entity.Symbol) error {
	if m.InsertMissingFunc != nil {
		return m.InsertMissingFunc(ctx, symbols)
	}
	return nil
}

// TestSymbolUsecase_ListActiveSymbols はListActiveSymbolsが結果とエラーをそのまま返すことを検証します。
func TestSymbolUsecase_ListActiveSymbols(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mockListActive func(ctx context.Context) ([]entity.Symbol, error)
		expectedCodes  []string
		wantErr        bool
	}{
		{
			name: "success",
			mockListActive: func(ctx context.Context) ([]entity.Symbol, error) {
				return []entity.Symbol{{Code: "EUR/USD"}, {Code: "XAU/USD"}}, nil
			},
			expectedCodes: []string{"EUR/USD", "XAU/USD"},
		},
		{
			name: "repository error",
			mockListActive: func(ctx context.Context) ([]entity.Symbol, error) {
				return nil, errors.New("database connection failed")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			uc := usecase.NewSymbolUsecase(&mockSymbolRepository{ListActiveFunc: tt.mockListActive})
			symbols, err := uc.ListActiveSymbols(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got := make([]string, 0, len(symbols))
			for _, s := range symbols {
				got = append(got, s.Code)
			}
			assert.Equal(t, tt.expectedCodes, got)
		})
	}
}

func TestSymbolUsecase_ListActiveCodes(t *testing.T) {
	t.Parallel()

	uc := usecase.NewSymbolUsecase(&mockSymbolRepository{
		ListActiveCodesFunc: func(ctx context.Context) ([]string, error) {
			return []string{"EUR/USD"}, nil
		},
	})
	codes, err := uc.ListActiveCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR/USD"}, codes)
}

// TestSymbolUsecase_EnsureSymbols はコードの正規化・重複排除・資産クラス推定を検証します。
func TestSymbolUsecase_EnsureSymbols(t *testing.T) {
	t.Parallel()

	var inserted []entity.Symbol
	uc := usecase.NewSymbolUsecase(&mockSymbolRepository{
		InsertMissingFunc: func(ctx context.Context, symbols []entity.Symbol) error {
			inserted = symbols
			return nil
		},
	})

	err := uc.EnsureSymbols(context.Background(), []string{" eur/usd ", "XAU/USD", "EUR/USD", "", "BTC/USD", "SPX"})
	require.NoError(t, err)

	require.Len(t, inserted, 4)
	assert.Equal(t, "EUR/USD", inserted[0].Code)
	assert.Equal(t, "forex", inserted[0].AssetClass)
	assert.True(t, inserted[0].IsActive)
	assert.Equal(t, "commodity", inserted[1].AssetClass)
	assert.Equal(t, 1, inserted[1].SortKey)
	assert.Equal(t, "crypto", inserted[2].AssetClass)
	assert.Equal(t, "other", inserted[3].AssetClass)
}

func TestSymbolUsecase_EnsureSymbols_Error(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("locked")
	uc := usecase.NewSymbolUsecase(&mockSymbolRepository{
		InsertMissingFunc: func(ctx context.Context, symbols []entity.Symbol) error { return dbErr },
	})

	err := uc.EnsureSymbols(context.Background(), []string{"EUR/USD"})
	assert.ErrorIs(t, err, dbErr)
}
