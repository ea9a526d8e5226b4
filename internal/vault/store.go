package vault

import (
	"OptionLedger/internal/reason"
	"bytes"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrCheckpointOpen is returned by Begin when a checkpoint is already open.
var ErrCheckpointOpen = errors.New("vault store checkpoint already open")

type key struct {
	owner common.Address
	id    uint64
}

// checkpoint keeps the pre-image of everything the current batch touched.
type checkpoint struct {
	vaults   map[key]*Vault // nil value: vault did not exist
	counters map[common.Address]uint64
}

// Store is the process-wide registry of vaults and per-owner vault counters.
// Vaults are created by Open and never deleted.
type Store struct {
	mu       sync.RWMutex
	vaults   map[key]*Vault
	counters map[common.Address]uint64
	cp       *checkpoint
}

func NewStore() *Store {
	return &Store{
		vaults:   make(map[key]*Vault),
		counters: make(map[common.Address]uint64),
	}
}

// VaultCount returns how many vaults owner has opened.
func (s *Store) VaultCount(owner common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[owner]
}

// Open allocates the owner's next vault id.
func (s *Store) Open(owner common.Address, typ Type, now time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.counters[owner] + 1
	k := key{owner, id}
	s.rememberCounter(owner)
	s.rememberVault(k)

	s.counters[owner] = id
	s.vaults[k] = &Vault{Owner: owner, ID: id, Type: typ, LatestUpdate: now}
	return id
}

// Get returns a copy of the vault.
func (s *Store) Get(owner common.Address, id uint64) (*Vault, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[key{owner, id}]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Committed returns a copy of the vault as it was when the open checkpoint
// began, or the current vault when none is open. A vault opened inside the
// checkpoint does not exist yet.
func (s *Store) Committed(owner common.Address, id uint64) (*Vault, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := key{owner, id}
	if s.cp != nil {
		if prev, seen := s.cp.vaults[k]; seen {
			if prev == nil {
				return nil, false
			}
			return prev.Clone(), true
		}
	}
	v, ok := s.vaults[k]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// CommittedVaultCount is VaultCount as of the open checkpoint's Begin.
func (s *Store) CommittedVaultCount(owner common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cp != nil {
		if prev, seen := s.cp.counters[owner]; seen {
			return prev
		}
	}
	return s.counters[owner]
}

// Mutate applies fn to a copy of the vault and stores it only if fn succeeds.
func (s *Store) Mutate(owner common.Address, id uint64, fn func(v *Vault) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{owner, id}
	v, ok := s.vaults[k]
	if !ok {
		return reason.Wrap(reason.ErrVaultIDOutOfRange, "owner %s vault %d", owner.Hex(), id)
	}
	next := v.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.rememberVault(k)
	s.vaults[k] = next
	return nil
}

// Vaults returns copies of all vaults of an owner, ordered by id.
func (s *Store) Vaults(owner common.Address) []*Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Vault, 0, s.counters[owner])
	for id := uint64(1); id <= s.counters[owner]; id++ {
		if v, ok := s.vaults[key{owner, id}]; ok {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Each visits every vault ordered by owner then id.
func (s *Store) Each(fn func(v *Vault)) {
	s.mu.RLock()
	keys := make([]key, 0, len(s.vaults))
	for k := range s.vaults {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].owner[:], keys[j].owner[:]); c != 0 {
			return c < 0
		}
		return keys[i].id < keys[j].id
	})
	vaults := make([]*Vault, len(keys))
	for i, k := range keys {
		vaults[i] = s.vaults[k].Clone()
	}
	s.mu.RUnlock()

	for _, v := range vaults {
		fn(v)
	}
}

// === Checkpoints ===

// Begin opens a checkpoint. Every vault or counter changed before Commit or
// Rollback has its prior value recorded.
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp != nil {
		return ErrCheckpointOpen
	}
	s.cp = &checkpoint{
		vaults:   make(map[key]*Vault),
		counters: make(map[common.Address]uint64),
	}
	return nil
}

// Commit keeps all changes since Begin.
func (s *Store) Commit() {
	s.mu.Lock()
	s.cp = nil
	s.mu.Unlock()
}

// Rollback restores every vault and counter to its value at Begin.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return
	}
	for k, prev := range s.cp.vaults {
		if prev == nil {
			delete(s.vaults, k)
		} else {
			s.vaults[k] = prev
		}
	}
	for owner, prev := range s.cp.counters {
		if prev == 0 {
			delete(s.counters, owner)
		} else {
			s.counters[owner] = prev
		}
	}
	s.cp = nil
}

func (s *Store) rememberVault(k key) {
	if s.cp == nil {
		return
	}
	if _, seen := s.cp.vaults[k]; seen {
		return
	}
	if v, ok := s.vaults[k]; ok {
		s.cp.vaults[k] = v
	} else {
		s.cp.vaults[k] = nil
	}
}

func (s *Store) rememberCounter(owner common.Address) {
	if s.cp == nil {
		return
	}
	if _, seen := s.cp.counters[owner]; !seen {
		s.cp.counters[owner] = s.counters[owner]
	}
}
