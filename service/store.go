package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Shri1927/freelance-escrow/backend/config"
	"github.com/Shri1927/freelance-escrow/backend/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errUnchanged is returned by a mutator to signal that the operation was an
// idempotent no-op: the store skips the write-back and the updatedAt bump.
var errUnchanged = errors.New("contract unchanged")

// ContractSpec is the caller-supplied part of a new contract
type ContractSpec struct {
	JobID        string
	ClientID     string
	FreelancerID string
	Amount       decimal.Decimal
	Currency     string
}

// ContractStore is an in-memory store for escrow contracts.
// In production, this should be replaced with a transactional database
// behind the same interface; the locking contract stays the same either way.
//
// Concurrency model: reads share a map-level RWMutex and always return
// clones, so a reader can never observe a half-applied mutation. Writes go
// through an exclusive per-contract lock with a bounded wait, so mutators
// for one id apply strictly in lock-acquisition order.
type ContractStore struct {
	mu        sync.RWMutex
	contracts map[string]*model.Contract
	order     []string // insertion order for List
	locks     map[string]chan struct{}
	lockWait  time.Duration
}

var (
	globalStore *ContractStore
	storeOnce   sync.Once
)

// InitContractStore initializes the global contract store with configuration
func InitContractStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		wait := time.Duration(cfg.LockWaitMS) * time.Millisecond
		if wait <= 0 {
			wait = 5 * time.Second
		}
		globalStore = NewContractStore(wait)
		slog.Info("contract store initialized", "lock_wait", wait)
	})
}

// GetContractStore returns the global contract store
func GetContractStore() *ContractStore {
	if globalStore == nil {
		globalStore = NewContractStore(5 * time.Second)
	}
	return globalStore
}

// NewContractStore creates an empty store with the given per-id lock wait
func NewContractStore(lockWait time.Duration) *ContractStore {
	return &ContractStore{
		contracts: make(map[string]*model.Contract),
		locks:     make(map[string]chan struct{}),
		lockWait:  lockWait,
	}
}

// Create allocates a new draft contract from the spec
func (s *ContractStore) Create(spec ContractSpec) (*model.Contract, error) {
	if !spec.Amount.IsPositive() {
		return nil, newError(KindInvalidSpec, "create", "amount must be positive")
	}
	if spec.Currency == "" {
		return nil, newError(KindInvalidSpec, "create", "currency is required")
	}

	now := time.Now()
	contract := &model.Contract{
		ID:           uuid.New().String(),
		JobID:        spec.JobID,
		ClientID:     spec.ClientID,
		FreelancerID: spec.FreelancerID,
		Amount:       spec.Amount,
		Currency:     spec.Currency,
		FundedAmount: decimal.Zero,
		Status:       model.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.contracts[contract.ID] = contract
	s.order = append(s.order, contract.ID)
	s.mu.Unlock()

	return contract.Clone(), nil
}

// Get returns a snapshot of the contract
func (s *ContractStore) Get(id string) (*model.Contract, error) {
	s.mu.RLock()
	contract, ok := s.contracts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, contractError(KindNotFound, "get", id, "", "no such contract")
	}
	return contract.Clone(), nil
}

// List returns snapshots of all contracts in insertion order
func (s *ContractStore) List() []*model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Contract, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.contracts[id]; ok {
			result = append(result, c.Clone())
		}
	}
	return result
}

// ListByParty returns snapshots of contracts the user is a party to
func (s *ContractStore) ListByParty(userID string) []*model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Contract
	for _, id := range s.order {
		if c, ok := s.contracts[id]; ok && c.HasParty(userID) {
			result = append(result, c.Clone())
		}
	}
	return result
}

// Update applies mutator to the contract under its exclusive lock.
// The mutator receives a clone; the store swaps the clone in only when the
// mutator returns nil, so a failed mutation leaves the record untouched.
// ctx cancellation is honored only while waiting for the lock; once the
// mutator starts it runs to completion.
func (s *ContractStore) Update(ctx context.Context, id, op string, mutator func(*model.Contract) error) (*model.Contract, error) {
	lock := s.lockFor(id)

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, contractError(KindBusy, op, id, "", "contract is locked by another operation")
	}
	defer func() { <-lock }()

	s.mu.RLock()
	current, ok := s.contracts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, contractError(KindNotFound, op, id, "", "no such contract")
	}

	next := current.Clone()
	if err := mutator(next); err != nil {
		if errors.Is(err, errUnchanged) {
			return current.Clone(), nil
		}
		return nil, err
	}
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	s.contracts[id] = next
	s.mu.Unlock()

	return next.Clone(), nil
}

// Count returns the number of contracts in the store
func (s *ContractStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

// lockFor returns the 1-slot lock channel for the contract id
func (s *ContractStore) lockFor(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[id] = lock
	}
	return lock
}
