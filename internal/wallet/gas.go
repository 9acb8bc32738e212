package wallet

import (
	"errors"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/storage"

	"go.uber.org/zap"
)

// ImportGasAccount loads a fee payer from a mnemonic or a base58 secret key and stores
// it encrypted under the wallet password. Exactly one of mnemonic and secretKey is used.
func (w *Wallet) ImportGasAccount(mnemonic, secretKey string, password []byte) (string, error) {
	if (mnemonic == "") == (secretKey == "") {
		return "", errors.New("provide either a mnemonic or a secret key")
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if !w.accounts.Unlocked() {
		return "", model.ErrNotUnlocked
	}

	// The gas blob shares the wallet password, so check it against the primary blob
	primary, err := w.store.LoadBlob(storage.KeyPrimaryWallet)
	if err != nil {
		return "", err
	}
	check, err := w.vault.DecryptKeypair(primary, password)
	if err != nil {
		return "", err
	}
	check.Zero()

	var (
		kp   *crypto.Keypair
		blob *model.EncryptedBlob
	)
	if mnemonic != "" {
		if kp, err = crypto.DeriveKeypair(mnemonic); err != nil {
			return "", err
		}
		blob, err = w.vault.EncryptMnemonic(mnemonic, password)
	} else {
		if kp, err = crypto.DeriveKeypairFromRawSecret(secretKey); err != nil {
			return "", err
		}
		blob, err = w.vault.EncryptSecretKey(secretKey, password)
	}
	if err != nil {
		kp.Zero()
		return "", fmt.Errorf("failed to encrypt gas account: %w", err)
	}

	if kp.PublicKey().String() == primary.Address {
		kp.Zero()
		return "", errors.New("gas account must differ from the primary account")
	}

	if err := w.store.SaveBlob(storage.KeyGasWallet, blob); err != nil {
		kp.Zero()
		return "", fmt.Errorf("failed to save gas account: %w", err)
	}
	w.accounts.SetGasAccount(kp)

	if err := w.updateSettings(func(s *model.Settings) { s.GasAccountEnabled = true }); err != nil {
		return "", err
	}

	w.logger.Info("gas account imported", zap.String("address", blob.Address))
	return blob.Address, nil
}

// SetGasAccountEnabled toggles whether sends may use the gas account as fee payer
func (w *Wallet) SetGasAccountEnabled(enabled bool) error {
	exists, err := w.store.Has(storage.KeyGasWallet)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrNoGasAccount
	}
	return w.updateSettings(func(s *model.Settings) { s.GasAccountEnabled = enabled })
}

// RemoveGasAccount deletes the stored gas account and wipes it from memory
func (w *Wallet) RemoveGasAccount() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if err := w.store.Delete(storage.KeyGasWallet); err != nil {
		return fmt.Errorf("failed to delete gas account: %w", err)
	}
	w.accounts.ClearGasAccount()

	return w.updateSettings(func(s *model.Settings) { s.GasAccountEnabled = false })
}

// gasAvailable reports whether the gas account is loaded and enabled
func (w *Wallet) gasAvailable() bool {
	w.mu.Lock()
	enabled := w.settings.GasAccountEnabled
	w.mu.Unlock()
	return enabled && w.accounts.Has(account.RoleGas)
}

// unlockGas loads the stored gas account, if any. Caller holds lifecycle.
func (w *Wallet) unlockGas(password []byte) {
	blob, err := w.store.LoadBlob(storage.KeyGasWallet)
	if err != nil {
		if !errors.Is(err, model.ErrWalletNotFound) {
			w.logger.Warn("failed to load gas account", zap.Error(err))
		}
		return
	}

	kp, err := w.vault.DecryptKeypair(blob, password)
	if err != nil {
		w.logger.Warn("failed to unlock gas account", zap.String("address", blob.Address), zap.Error(err))
		return
	}
	w.accounts.SetGasAccount(kp)
}
