// Package feed provides clients for the upstream brokerage data APIs: the
// normalized transaction history the engine consumes and the quote marks
// used for open P&L.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// ErrNoQuote is returned when no mark is available for a symbol. Callers
// degrade to "open P&L unknown" rather than failing.
var ErrNoQuote = errors.New("no quote available")

// TransactionSource fetches an account's transaction history. Results are
// returned oldest first.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, account string, since time.Time) ([]models.RawTransaction, error)
}

// QuoteSource provides current marks for open P&L computation.
type QuoteSource interface {
	GetMark(ctx context.Context, symbol string) (float64, error)
}

// Source combines both feed capabilities.
type Source interface {
	TransactionSource
	QuoteSource
}
