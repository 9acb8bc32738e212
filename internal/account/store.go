// Package account holds the unlocked wallet keys. Only public keys, balances and
// signatures ever leave a Store; secret keys stay inside and are wiped on Lock.
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
)

// Role names one of the two account slots
type Role string

const (
	RolePrimary Role = "primary"
	RoleGas     Role = "gas" // optional fee payer
)

// ErrNotSigner means the role's key is not a required signer of the transaction
var ErrNotSigner = errors.New("account is not a required signer of the transaction")

// ParseRole parses a role name, an empty string meaning primary
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RolePrimary:
		return RolePrimary, nil
	case RoleGas:
		return RoleGas, nil
	}
	return "", fmt.Errorf("unknown account role %q", s)
}

// BalanceSource reads an on-chain balance in lamports
type BalanceSource interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
}

type slot struct {
	kp        *crypto.Keypair
	balance   uint64
	balanceAt time.Time
}

// Store holds zero or one primary and zero or one gas keypair.
// Signing holds the read lock for its whole duration and Lock takes the write lock,
// so a lock waits for in-flight signs and later signs observe ErrNotUnlocked.
type Store struct {
	mu       sync.RWMutex
	slots    map[Role]*slot
	balances BalanceSource
}

// NewStore returns an empty (locked) store
func NewStore(balances BalanceSource) *Store {
	return &Store{
		slots:    make(map[Role]*slot),
		balances: balances,
	}
}

// SetBalanceSource swaps the chain used for balances and drops cached values
func (s *Store) SetBalanceSource(balances BalanceSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances = balances
	for _, sl := range s.slots {
		sl.balance = 0
		sl.balanceAt = time.Time{}
	}
}

// Unlock derives the primary keypair from mnemonic and loads it
func (s *Store) Unlock(mnemonic string) (solana.PublicKey, error) {
	kp, err := crypto.DeriveKeypair(mnemonic)
	if err != nil {
		return solana.PublicKey{}, err
	}
	s.UnlockKeypair(RolePrimary, kp)
	return kp.PublicKey(), nil
}

// UnlockKeypair loads kp into role, wiping any keypair it replaces.
// The store takes ownership of kp.
func (s *Store) UnlockKeypair(role Role, kp *crypto.Keypair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.slots[role]; ok && old.kp != kp {
		old.kp.Zero()
	}
	s.slots[role] = &slot{kp: kp}
}

// SetGasAccount loads the fee payer keypair
func (s *Store) SetGasAccount(kp *crypto.Keypair) {
	s.UnlockKeypair(RoleGas, kp)
}

// ClearGasAccount wipes and unloads the fee payer keypair
func (s *Store) ClearGasAccount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear(RoleGas)
}

// Lock wipes every loaded secret key
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for role := range s.slots {
		s.clear(role)
	}
}

func (s *Store) clear(role Role) {
	if sl, ok := s.slots[role]; ok {
		sl.kp.Zero()
		delete(s.slots, role)
	}
}

// Unlocked reports whether the primary account is loaded
func (s *Store) Unlocked() bool {
	return s.Has(RolePrimary)
}

// Has reports whether role holds a keypair
func (s *Store) Has(role Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[role]
	return ok
}

// PublicAddress returns the public key loaded in role
func (s *Store) PublicAddress(role Role) (solana.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[role]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%s account: %w", role, model.ErrNotUnlocked)
	}
	return sl.kp.PublicKey(), nil
}

// Balance fetches the role's balance from the chain and caches it
func (s *Store) Balance(ctx context.Context, role Role) (uint64, error) {
	s.mu.RLock()
	sl, ok := s.slots[role]
	balances := s.balances
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s account: %w", role, model.ErrNotUnlocked)
	}
	if balances == nil {
		return 0, errors.New("no balance source configured")
	}

	pub := sl.kp.PublicKey()
	lamports, err := balances.GetBalance(ctx, pub)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s balance: %w", role, err)
	}

	s.mu.Lock()
	// the slot may have been replaced or locked while the RPC was in flight
	if current, ok := s.slots[role]; ok && current == sl {
		sl.balance = lamports
		sl.balanceAt = time.Now()
	}
	s.mu.Unlock()

	return lamports, nil
}

// CachedBalance returns the last fetched balance without a network call
func (s *Store) CachedBalance(role Role) (lamports uint64, fetchedAt time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[role]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%s account: %w", role, model.ErrNotUnlocked)
	}
	return sl.balance, sl.balanceAt, nil
}

// SignBytes signs an arbitrary message with the role's key
func (s *Store) SignBytes(role Role, message []byte) (solana.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[role]
	if !ok {
		return solana.Signature{}, fmt.Errorf("%s account: %w", role, model.ErrNotUnlocked)
	}
	return sl.kp.Sign(message)
}

// SignTransaction adds the role's signature to tx at the role's signer index.
// Other signatures already present are left untouched.
func (s *Store) SignTransaction(role Role, tx *solana.Transaction) (*solana.Transaction, error) {
	if tx == nil {
		return nil, errors.New("nil transaction")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[role]
	if !ok {
		return nil, fmt.Errorf("%s account: %w", role, model.ErrNotUnlocked)
	}
	pub := sl.kp.PublicKey()

	required := int(tx.Message.Header.NumRequiredSignatures)
	index := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%s account %s: %w", role, pub, ErrNotSigner)
	}

	content, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	sig, err := sl.kp.Sign(content)
	if err != nil {
		return nil, err
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[index] = sig
	return tx, nil
}
