package wallet

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/account"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/multierr"
)

// SignMessage signs an approved dApp message with the primary key
func (w *Wallet) SignMessage(_ context.Context, message []byte) (solana.Signature, error) {
	w.touch()
	return w.accounts.SignBytes(account.RolePrimary, message)
}

// SignTransactions signs approved dApp transactions with the primary key.
// Transactions nobody signed yet get a fresh blockhash first. Failures are
// collected and the successfully signed transactions returned alongside.
func (w *Wallet) SignTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	w.touch()

	var errs error
	signed := make([]*solana.Transaction, 0, len(txs))
	for i, tx := range txs {
		if err := w.signOne(ctx, tx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("transaction %d: %w", i, err))
			continue
		}
		signed = append(signed, tx)
	}
	return signed, errs
}

// SendTransactions signs and broadcasts approved dApp transactions in order
func (w *Wallet) SendTransactions(ctx context.Context, txs []*solana.Transaction) ([]solana.Signature, error) {
	w.touch()

	var errs error
	sigs := make([]solana.Signature, 0, len(txs))
	for i, tx := range txs {
		if err := w.signOne(ctx, tx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("transaction %d: %w", i, err))
			continue
		}
		sig, err := w.currentEngine().SubmitSigned(ctx, tx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("transaction %d: %w", i, err))
			if sig == (solana.Signature{}) {
				continue
			}
		}
		sigs = append(sigs, sig)
	}
	return sigs, errs
}

func (w *Wallet) signOne(ctx context.Context, tx *solana.Transaction) error {
	if tx == nil {
		return fmt.Errorf("nil transaction")
	}
	if unsigned(tx) {
		if err := w.currentEngine().RefreshBlockhash(ctx, tx); err != nil {
			return fmt.Errorf("failed to refresh blockhash: %w", err)
		}
	}
	_, err := w.accounts.SignTransaction(account.RolePrimary, tx)
	return err
}

func unsigned(tx *solana.Transaction) bool {
	for _, sig := range tx.Signatures {
		if sig != (solana.Signature{}) {
			return false
		}
	}
	return true
}
