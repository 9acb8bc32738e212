// Package wallet owns the wallet lifecycle: it is the single context object wiring
// storage, the key vault, the unlocked accounts, the transaction engine and the
// dApp request broker together.
package wallet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/broker"
	"github.com/AlexZinkM/oasis-wallet/internal/config"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/storage"
	engine "github.com/AlexZinkM/oasis-wallet/solana"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest password accepted for a new wallet
const MinPasswordLength = 8

// ErrPasswordTooShort is returned by Create, Import and ChangePassword
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// Chain is everything the wallet needs from one network
type Chain interface {
	account.BalanceSource
	engine.ChainClient
}

// ChainFactory connects to a network by name
type ChainFactory func(network string) (Chain, error)

// Options configures a Wallet
type Options struct {
	Network       string
	Chain         ChainFactory
	Vault         *crypto.Vault
	AutoLockAfter time.Duration // 0 disables auto-lock
	SessionTTL    time.Duration // 0 disables auto-unlock
	PayCooldown   time.Duration
	HistoryLimit  int
	Engine        engine.Options
}

// Wallet is the wallet context
type Wallet struct {
	store    *storage.Store
	vault    *crypto.Vault
	accounts *account.Store
	broker   *broker.Broker
	session  *SessionCache
	newChain ChainFactory
	logger   *zap.Logger

	autoLockAfter time.Duration
	payCooldown   time.Duration
	historyLimit  int
	engineOpts    engine.Options

	// lifecycle serializes create, import, unlock, lock and secret changes
	lifecycle sync.Mutex

	mu        sync.Mutex
	settings  model.Settings
	chain     Chain
	engine    *engine.Engine
	lockTimer *time.Timer
	lockGen   uint64
	recent    []model.TransactionRecord

	payMu   sync.Mutex
	lastPay time.Time
}

// New builds the wallet context over store. The wallet starts locked.
func New(store *storage.Store, opts Options, logger *zap.Logger) (*Wallet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Chain == nil {
		return nil, errors.New("no chain factory configured")
	}
	if opts.Vault == nil {
		opts.Vault = crypto.NewVault(crypto.DefaultParams)
	}
	if opts.Network == "" {
		opts.Network = config.NetworkDevnet
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}

	settings, err := store.LoadSettings(model.DefaultSettings(opts.Network))
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if !config.IsKnownNetwork(settings.Network) {
		settings.Network = opts.Network
	}

	w := &Wallet{
		store:         store,
		vault:         opts.Vault,
		session:       NewSessionCache(opts.SessionTTL),
		newChain:      opts.Chain,
		logger:        logger,
		autoLockAfter: opts.AutoLockAfter,
		payCooldown:   opts.PayCooldown,
		historyLimit:  opts.HistoryLimit,
		engineOpts:    opts.Engine,
		settings:      settings,
	}

	chain, err := w.newChain(settings.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", settings.Network, err)
	}
	w.accounts = account.NewStore(chain)
	w.chain = chain
	w.engine = engine.NewEngine(chain, w.accounts, w.engineOpts, logger)

	w.broker, err = broker.New(store, w, logger.Named("broker"))
	if err != nil {
		return nil, err
	}
	w.broker.SetEnabled(settings.DAppsEnabled)

	return w, nil
}

// Broker returns the dApp request broker
func (w *Wallet) Broker() *broker.Broker {
	return w.broker
}

// Close locks the wallet and stops its timers
func (w *Wallet) Close() {
	w.Lock()
}

// Initialized reports whether a primary wallet is stored
func (w *Wallet) Initialized() (bool, error) {
	return w.store.Has(storage.KeyPrimaryWallet)
}

// Create generates a new wallet, stores it encrypted under password and unlocks it.
// The mnemonic is returned once so the user can back it up.
// password must be []byte for security (caller should zero it after use)
func (w *Wallet) Create(password []byte) (address, mnemonic string, err error) {
	mnemonic, err = crypto.GenerateMnemonic()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	address, err = w.initialize(mnemonic, password)
	if err != nil {
		return "", "", err
	}
	return address, mnemonic, nil
}

// Import restores a wallet from mnemonic, stores it encrypted under password and unlocks it
func (w *Wallet) Import(mnemonic string, password []byte) (string, error) {
	normalized := crypto.NormalizeMnemonic(mnemonic)
	if !crypto.ValidateMnemonic(normalized) {
		return "", model.ErrInvalidMnemonic
	}
	return w.initialize(normalized, password)
}

func (w *Wallet) initialize(mnemonic string, password []byte) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	// Check wallet existence
	exists, err := w.store.Has(storage.KeyPrimaryWallet)
	if err != nil {
		return "", err
	}
	if exists {
		return "", model.ErrWalletExists
	}

	blob, err := w.vault.EncryptMnemonic(mnemonic, password)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt wallet: %w", err)
	}
	if err := w.store.SaveBlob(storage.KeyPrimaryWallet, blob); err != nil {
		return "", fmt.Errorf("failed to save wallet: %w", err)
	}

	pub, err := w.accounts.Unlock(mnemonic)
	if err != nil {
		return "", err
	}
	w.session.Put(password)
	w.armAutoLock()

	w.logger.Info("wallet initialized", zap.Stringer("address", pub))
	return pub.String(), nil
}

// Unlock decrypts the stored wallet with password. A wrong password leaves the wallet locked.
func (w *Wallet) Unlock(password []byte) (string, error) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	blob, err := w.store.LoadBlob(storage.KeyPrimaryWallet)
	if err != nil {
		return "", err
	}

	kp, err := w.vault.DecryptKeypair(blob, password)
	if err != nil {
		if errors.Is(err, model.ErrAuthenticationFailed) {
			w.logger.Warn("unlock failed: wrong password")
		}
		return "", err
	}
	w.accounts.UnlockKeypair(account.RolePrimary, kp)
	w.unlockGas(password)

	w.session.Put(password)
	w.armAutoLock()

	w.logger.Info("wallet unlocked", zap.String("address", blob.Address))
	return blob.Address, nil
}

// TryAutoUnlock unlocks with the session cached password, if any is still valid
func (w *Wallet) TryAutoUnlock() bool {
	if w.accounts.Unlocked() {
		return true
	}
	password, ok := w.session.Get()
	if !ok {
		return false
	}
	defer clear(password)

	if _, err := w.Unlock(password); err != nil {
		w.session.Clear()
		return false
	}
	return true
}

// Lock wipes all secret keys from memory. The session cache survives an auto-lock
// but not an explicit Lock.
func (w *Wallet) Lock() {
	w.lock(true)
}

func (w *Wallet) lock(explicit bool) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.lockLocked(explicit)
}

// lockLocked wipes the accounts. Caller holds lifecycle.
func (w *Wallet) lockLocked(explicit bool) {
	w.accounts.Lock()
	if explicit {
		w.session.Clear()
	}

	w.mu.Lock()
	if w.lockTimer != nil {
		w.lockTimer.Stop()
		w.lockTimer = nil
	}
	w.lockGen++
	w.mu.Unlock()

	w.logger.Info("wallet locked", zap.Bool("explicit", explicit))
}

// Unlocked reports whether the primary account is loaded
func (w *Wallet) Unlocked() bool {
	return w.accounts.Unlocked()
}

// PublicKey returns the unlocked primary address
func (w *Wallet) PublicKey() (solana.PublicKey, error) {
	w.touch()
	return w.accounts.PublicAddress(account.RolePrimary)
}

// Address returns the stored primary address, readable while locked
func (w *Wallet) Address() (string, error) {
	blob, err := w.store.LoadBlob(storage.KeyPrimaryWallet)
	if err != nil {
		return "", err
	}
	return blob.Address, nil
}

// Status summarizes the wallet state without exposing secrets
func (w *Wallet) Status() (*model.WalletStatus, error) {
	w.mu.Lock()
	settings := w.settings
	w.mu.Unlock()

	status := &model.WalletStatus{
		Unlocked:          w.accounts.Unlocked(),
		GasAccountEnabled: settings.GasAccountEnabled,
		Network:           settings.Network,
		DAppsEnabled:      settings.DAppsEnabled,
		AutoLock:          settings.AutoLock,
	}

	blob, err := w.store.LoadBlob(storage.KeyPrimaryWallet)
	switch {
	case errors.Is(err, model.ErrWalletNotFound):
		return status, nil
	case err != nil:
		return nil, err
	}
	status.Initialized = true
	status.Address = blob.Address

	if gas, err := w.store.LoadBlob(storage.KeyGasWallet); err == nil {
		status.GasAddress = gas.Address
	}
	return status, nil
}

// ChangePassword re-encrypts every stored secret under newPassword
func (w *Wallet) ChangePassword(oldPassword, newPassword []byte) error {
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	resealed := make(map[string]*model.EncryptedBlob, 2)
	for _, key := range []string{storage.KeyPrimaryWallet, storage.KeyGasWallet} {
		blob, err := w.store.LoadBlob(key)
		if errors.Is(err, model.ErrWalletNotFound) && key == storage.KeyGasWallet {
			continue
		}
		if err != nil {
			return err
		}
		fresh, err := w.vault.Reencrypt(blob, oldPassword, newPassword)
		if err != nil {
			return err
		}
		resealed[key] = fresh
	}

	// Write only after every blob re-encrypted
	for key, blob := range resealed {
		if err := w.store.SaveBlob(key, blob); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}

	if w.accounts.Unlocked() {
		w.session.Put(newPassword)
	}
	w.logger.Info("wallet password changed")
	return nil
}

// touch records user or dApp activity, pushing back the auto-lock.
// A timer that already fired is superseded too, its callback may still be
// waiting for the lifecycle lock.
func (w *Wallet) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockTimer != nil {
		w.rearmLocked()
	}
}

// armAutoLock starts the inactivity timer if auto-lock is on
func (w *Wallet) armAutoLock() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lockTimer != nil {
		w.lockTimer.Stop()
		w.lockTimer = nil
	}
	if w.autoLockAfter <= 0 || !w.settings.AutoLock {
		return
	}
	w.rearmLocked()
}

// rearmLocked replaces the timer with a fresh generation. w.mu must be held.
func (w *Wallet) rearmLocked() {
	if w.lockTimer != nil {
		w.lockTimer.Stop()
	}
	w.lockGen++
	gen := w.lockGen
	w.lockTimer = time.AfterFunc(w.autoLockAfter, func() { w.autoLock(gen) })
}

// autoLock locks unless the timer of generation gen was replaced in the meantime
func (w *Wallet) autoLock(gen uint64) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	stale := gen != w.lockGen
	w.mu.Unlock()
	if stale {
		return
	}
	w.logger.Info("auto-locking after inactivity", zap.Duration("after", w.autoLockAfter))
	w.lockLocked(false)
}
