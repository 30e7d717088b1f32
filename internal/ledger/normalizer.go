// Package ledger reconstructs a coherent trading ledger from a raw broker
// transaction history: it groups fills into orders, tracks open quantity per
// lot, matches closings to lots, links orders into multi-order chains,
// classifies strategies, and computes realized P&L.
//
// The pipeline is a deterministic, single-threaded batch transform per
// account. It performs no I/O and re-derives everything from scratch on each
// run, so re-processing a superset of a previous transaction set is
// idempotent by construction.
package ledger

import (
	"fmt"
	"sort"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

// normalize deduplicates and validates the raw transaction set and returns
// it sorted by execution time (ties broken by transaction id so ordering is
// deterministic). Malformed and duplicate transactions are skipped and
// recorded as reconciliation issues, never fatal.
func (r *run) normalize(txns []models.RawTransaction) []models.RawTransaction {
	seen := make(map[string]bool, len(txns))
	out := make([]models.RawTransaction, 0, len(txns))

	for _, t := range txns {
		if reason := malformedReason(&t); reason != "" {
			r.addIssue(models.Issue{
				Kind:          models.IssueMalformedTransaction,
				Account:       r.account,
				TransactionID: t.ID,
				Symbol:        t.Symbol,
				Detail:        reason,
				OccurredAt:    t.ExecutedAt,
			})
			continue
		}
		if seen[t.ID] {
			r.addIssue(models.Issue{
				Kind:          models.IssueDuplicateTransaction,
				Account:       r.account,
				TransactionID: t.ID,
				Symbol:        t.Symbol,
				Detail:        fmt.Sprintf("transaction %s already ingested, skipping", t.ID),
				OccurredAt:    t.ExecutedAt,
			})
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.Before(out[j].ExecutedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// malformedReason returns a non-empty description if the transaction is
// missing required fields.
func malformedReason(t *models.RawTransaction) string {
	switch {
	case t.ID == "":
		return "missing transaction id"
	case t.Symbol == "":
		return "missing symbol"
	case t.Quantity == 0:
		return "missing quantity"
	case t.Price < 0:
		return "negative price"
	case t.ExecutedAt.IsZero():
		return "missing executed_at timestamp"
	case t.IsOption() && (t.OptionType != models.OptionTypeCall && t.OptionType != models.OptionTypePut):
		return "option transaction missing option type"
	case t.IsOption() && t.Expiration.IsZero():
		return "option transaction missing expiration"
	default:
		return ""
	}
}
