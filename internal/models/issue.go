package models

import "time"

// IssueKind enumerates the reconciliation problems the pipeline can detect.
// All of them are non-fatal: the batch continues and the issue is recorded.
type IssueKind string

const (
	// IssueUnmatchedClosing means a closing leg found no candidate open lot.
	IssueUnmatchedClosing IssueKind = "unmatched_closing_transaction"
	// IssueAmbiguousRollMatch means multiple chains qualified as roll or
	// closing target; the tie was broken by nearest date, then nearest strike.
	IssueAmbiguousRollMatch IssueKind = "ambiguous_roll_match"
	// IssueOverCloseQuantity means a closing leg exceeded the available
	// remaining quantity and was clamped.
	IssueOverCloseQuantity IssueKind = "over_close_quantity"
	// IssueMalformedTransaction means a transaction was missing required
	// fields and was skipped.
	IssueMalformedTransaction IssueKind = "malformed_transaction"
	// IssueDuplicateTransaction means a transaction id was seen more than once.
	IssueDuplicateTransaction IssueKind = "duplicate_transaction_id"
	// IssueMissingAssignmentPair means an option removal event had no
	// matching stock event within the pairing window.
	IssueMissingAssignmentPair IssueKind = "missing_assignment_pair"
)

// Issue is one entry in the reconciliation report.
type Issue struct {
	Kind          IssueKind `json:"kind"`
	Account       string    `json:"account"`
	TransactionID string    `json:"transaction_id,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	Symbol        string    `json:"symbol,omitempty"`
	Detail        string    `json:"detail"`
	OccurredAt    time.Time `json:"occurred_at,omitempty"`
}
