package ledger

import (
	"testing"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

func newTestRun() *run {
	return &run{
		account:     testAccount,
		cfg:         DefaultConfig,
		logger:      discardLogger(),
		lotByID:     make(map[string]*models.PositionLot),
		lotsByChain: make(map[string][]*models.PositionLot),
		chainByID:   make(map[string]*models.OrderChain),
	}
}

func TestNormalizeDeduplicates(t *testing.T) {
	r := newTestRun()
	txn := stockFill("t1", "100", "Buy to Open", 100, 50, day(2, 15))

	out := r.normalize([]models.RawTransaction{txn, txn})

	if len(out) != 1 {
		t.Fatalf("got %d transactions, want 1", len(out))
	}
	if len(r.issues) != 1 || r.issues[0].Kind != models.IssueDuplicateTransaction {
		t.Errorf("issues = %+v, want one duplicate_transaction_id", r.issues)
	}
}

func TestNormalizeSkipsMalformed(t *testing.T) {
	base := optionFill("t1", "100", "Sell to Open", -1, 1.50, day(2, 15), models.OptionTypePut, 450, janExp)

	tests := []struct {
		name   string
		mutate func(*models.RawTransaction)
	}{
		{"missing id", func(x *models.RawTransaction) { x.ID = "" }},
		{"missing symbol", func(x *models.RawTransaction) { x.Symbol = "" }},
		{"zero quantity", func(x *models.RawTransaction) { x.Quantity = 0 }},
		{"negative price", func(x *models.RawTransaction) { x.Price = -1 }},
		{"missing timestamp", func(x *models.RawTransaction) { x.ExecutedAt = time.Time{} }},
		{"option missing type", func(x *models.RawTransaction) { x.OptionType = "" }},
		{"option missing expiration", func(x *models.RawTransaction) { x.Expiration = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRun()
			txn := base
			tt.mutate(&txn)

			out := r.normalize([]models.RawTransaction{txn})

			if len(out) != 0 {
				t.Errorf("malformed transaction survived normalization: %+v", out)
			}
			if len(r.issues) != 1 || r.issues[0].Kind != models.IssueMalformedTransaction {
				t.Errorf("issues = %+v, want one malformed_transaction", r.issues)
			}
		})
	}
}

func TestNormalizeAllowsZeroPrice(t *testing.T) {
	r := newTestRun()
	txn := systemOptionEvent("t1", models.SubTypeExpiration, 1, 0, day(19, 22), models.OptionTypePut, 450, janExp)

	out := r.normalize([]models.RawTransaction{txn})

	if len(out) != 1 || len(r.issues) != 0 {
		t.Errorf("zero-price expiration rejected: out=%d issues=%+v", len(out), r.issues)
	}
}

func TestNormalizeSortsDeterministically(t *testing.T) {
	r := newTestRun()
	a := stockFill("b", "100", "Buy to Open", 100, 50, day(3, 15))
	b := stockFill("a", "101", "Buy to Open", 100, 50, day(3, 15))
	c := stockFill("c", "102", "Buy to Open", 100, 50, day(2, 15))

	out := r.normalize([]models.RawTransaction{a, b, c})

	want := []string{"c", "a", "b"} // time first, then id for same-time fills
	for i, txn := range out {
		if txn.ID != want[i] {
			t.Fatalf("order = %v, want %v", ids(out), want)
		}
	}
}

func ids(txns []models.RawTransaction) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}
