package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// MockSource serves canned transactions and marks. Used by tests and by the
// reprocess CLI's file input mode.
type MockSource struct {
	Transactions map[string][]models.RawTransaction // keyed by account
	Marks        map[string]float64
}

// Ensure MockSource implements Source at compile time.
var _ Source = (*MockSource)(nil)

// NewMockSource creates an empty mock feed.
func NewMockSource() *MockSource {
	return &MockSource{
		Transactions: make(map[string][]models.RawTransaction),
		Marks:        make(map[string]float64),
	}
}

// FetchTransactions returns the account's canned transactions at or after
// since.
func (m *MockSource) FetchTransactions(_ context.Context, account string, since time.Time) ([]models.RawTransaction, error) {
	var out []models.RawTransaction
	for _, t := range m.Transactions[account] {
		if since.IsZero() || !t.ExecutedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetMark returns the canned mark for a symbol, or ErrNoQuote.
func (m *MockSource) GetMark(_ context.Context, symbol string) (float64, error) {
	mark, ok := m.Marks[symbol]
	if !ok {
		return 0, fmt.Errorf("%s: %w", symbol, ErrNoQuote)
	}
	return mark, nil
}

// LoadTransactionsFile reads a JSON array of raw transactions and registers
// them under the account each names.
func (m *MockSource) LoadTransactionsFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-provided input file
	if err != nil {
		return fmt.Errorf("reading transactions file: %w", err)
	}
	var txns []models.RawTransaction
	if err := json.Unmarshal(data, &txns); err != nil {
		return fmt.Errorf("parsing transactions file: %w", err)
	}
	for _, t := range txns {
		m.Transactions[t.AccountNumber] = append(m.Transactions[t.AccountNumber], t)
	}
	return nil
}
