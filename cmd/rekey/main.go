// Offline: re-encrypt the stored wallet under a new password and the configured scrypt
// parameters. The daemon must be stopped, the database is opened exclusively.
// Usage: go run ./cmd/rekey
package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/AlexZinkM/oasis-wallet/internal/config"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/storage"
	"github.com/AlexZinkM/oasis-wallet/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	oldPassword, err := config.PromptForPassword("Current password: ")
	if err != nil {
		return err
	}
	defer clear(oldPassword)

	newPassword, err := config.PromptForPassword("New password: ")
	if err != nil {
		return err
	}
	defer clear(newPassword)

	confirm, err := config.PromptForPassword("Repeat new password: ")
	if err != nil {
		return err
	}
	defer clear(confirm)

	if !bytes.Equal(newPassword, confirm) {
		return errors.New("passwords do not match")
	}
	if len(newPassword) < wallet.MinPasswordLength {
		return wallet.ErrPasswordTooShort
	}

	vault := crypto.NewVault(crypto.Params{N: cfg.ScryptN, R: cfg.ScryptR, P: cfg.ScryptP})
	return rekey(store, vault, oldPassword, newPassword)
}

// rekey re-encrypts every stored secret, writing nothing unless all of them opened
func rekey(store *storage.Store, vault *crypto.Vault, oldPassword, newPassword []byte) error {
	resealed := make(map[string]*model.EncryptedBlob, 2)
	for _, key := range []string{storage.KeyPrimaryWallet, storage.KeyGasWallet} {
		blob, err := store.LoadBlob(key)
		if errors.Is(err, model.ErrWalletNotFound) && key == storage.KeyGasWallet {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		fresh, err := vault.Reencrypt(blob, oldPassword, newPassword)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		resealed[key] = fresh
	}

	for key, blob := range resealed {
		if err := store.SaveBlob(key, blob); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
		fmt.Printf("re-encrypted %s (%s, scrypt N=%d)\n", key, blob.Address, blob.KDF.N)
	}
	return nil
}
