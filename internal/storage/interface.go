// Package storage persists reconstructed ledger snapshots and serves the
// read queries the API layer exposes.
package storage

import (
	"errors"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/ledger"
	"github.com/eddiefleurent/tradeledger/internal/models"
)

// ErrChainNotFound is returned when a chain id is unknown.
var ErrChainNotFound = errors.New("chain not found")

// Snapshot is the persisted reconstruction output for one account: the
// logical orders/lots/chains schema plus the reconciliation report and
// aggregate statistics.
type Snapshot struct {
	Account     string               `json:"account"`
	Orders      []models.Order       `json:"orders"`
	Lots        []models.PositionLot `json:"lots"`
	Chains      []models.OrderChain  `json:"chains"`
	Issues      []models.Issue       `json:"issues"`
	Stats       ledger.Stats         `json:"stats"`
	LastUpdated time.Time            `json:"last_updated"`
}

// ChainFilter narrows chain listings.
type ChainFilter struct {
	Underlying  string
	Status      models.ChainStatus
	OptionsOnly bool
}

// LotDetail is a lot with its derived lots nested beneath it.
type LotDetail struct {
	models.PositionLot
	Derived []LotDetail `json:"derived,omitempty"`
}

// ChainDetail is the full lot/closing/order history of one chain.
type ChainDetail struct {
	Chain  models.OrderChain `json:"chain"`
	Orders []models.Order    `json:"orders"`
	Lots   []LotDetail       `json:"lots"`
}

// Interface defines the contract for ledger snapshot persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe. The provided JSONStorage implementation uses
// sync.RWMutex to serialize access.
type Interface interface {
	// Snapshot management
	SaveResult(res *ledger.Result) error
	GetSnapshot(account string) *Snapshot
	Accounts() []string

	// Read queries
	ListChains(account string, f ChainFilter) []models.OrderChain
	GetChainDetail(chainID string) (*ChainDetail, error)
	Issues(account string) []models.Issue

	// Data persistence
	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface.
var _ Interface = (*JSONStorage)(nil)
