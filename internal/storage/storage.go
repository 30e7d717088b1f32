package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/ledger"
	"github.com/eddiefleurent/tradeledger/internal/models"
)

// JSONStorage persists snapshots as a single JSON file, written atomically
// via a temp file rename.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

type storageData struct {
	Snapshots   map[string]*Snapshot `json:"snapshots"` // keyed by account
	LastUpdated time.Time            `json:"last_updated"`
}

// NewJSONStorage creates file-backed storage, loading existing data if the
// file exists.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &storageData{
			Snapshots: make(map[string]*Snapshot),
		},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the storage file from disk.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return err
	}
	if s.data.Snapshots == nil {
		s.data.Snapshots = make(map[string]*Snapshot)
	}
	return nil
}

// Save writes the storage file to disk atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// SaveResult replaces the account's snapshot with a fresh reconstruction.
// A full replacement per account keeps partial failures from leaving a mixed
// old/new state.
func (s *JSONStorage) SaveResult(res *ledger.Result) error {
	if res == nil || res.Account == "" {
		return fmt.Errorf("save result: missing account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Snapshots[res.Account] = &Snapshot{
		Account:     res.Account,
		Orders:      res.Orders,
		Lots:        res.Lots,
		Chains:      res.Chains,
		Issues:      res.Issues,
		Stats:       res.Stats,
		LastUpdated: time.Now().UTC(),
	}
	return s.saveLocked()
}

// GetSnapshot returns the stored snapshot for the account, or nil.
func (s *JSONStorage) GetSnapshot(account string) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Snapshots[account]
}

// Accounts lists accounts with stored snapshots, sorted.
func (s *JSONStorage) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]string, 0, len(s.data.Snapshots))
	for a := range s.data.Snapshots {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	return accounts
}

// ListChains returns the account's chains matching the filter, in snapshot
// order (opening date).
func (s *JSONStorage) ListChains(account string, f ChainFilter) []models.OrderChain {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.data.Snapshots[account]
	if snap == nil {
		return nil
	}

	var out []models.OrderChain
	for _, c := range snap.Chains {
		if f.Underlying != "" && c.Underlying != f.Underlying {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.OptionsOnly && !c.OptionsOnly {
			continue
		}
		out = append(out, c)
	}
	return out
}

// GetChainDetail returns the full history of one chain: its orders and its
// lots with derived lots nested under their parent.
func (s *JSONStorage) GetChainDetail(chainID string) (*ChainDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.data.Snapshots {
		for _, c := range snap.Chains {
			if c.ID != chainID {
				continue
			}
			return buildChainDetail(snap, c), nil
		}
	}
	return nil, fmt.Errorf("chain %s: %w", chainID, ErrChainNotFound)
}

func buildChainDetail(snap *Snapshot, chain models.OrderChain) *ChainDetail {
	detail := &ChainDetail{Chain: chain}

	inChain := make(map[string]bool, len(chain.OrderIDs))
	for _, id := range chain.OrderIDs {
		inChain[id] = true
	}
	for _, o := range snap.Orders {
		if inChain[o.ID] {
			detail.Orders = append(detail.Orders, o)
		}
	}

	children := make(map[string][]models.PositionLot)
	var roots []models.PositionLot
	for _, l := range snap.Lots {
		if l.ChainID != chain.ID {
			continue
		}
		if l.DerivedFromLotID != "" {
			children[l.DerivedFromLotID] = append(children[l.DerivedFromLotID], l)
		} else {
			roots = append(roots, l)
		}
	}
	for _, root := range roots {
		detail.Lots = append(detail.Lots, nestLot(root, children))
	}
	return detail
}

// nestLot builds the lineage tree under one lot. Derivation only flows
// forward in time, so the recursion cannot cycle.
func nestLot(lot models.PositionLot, children map[string][]models.PositionLot) LotDetail {
	d := LotDetail{PositionLot: lot}
	for _, child := range children[lot.ID] {
		d.Derived = append(d.Derived, nestLot(child, children))
	}
	return d
}

// Issues returns the account's reconciliation report.
func (s *JSONStorage) Issues(account string) []models.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.data.Snapshots[account]
	if snap == nil {
		return nil
	}
	return snap.Issues
}
