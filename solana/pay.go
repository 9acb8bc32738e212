package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/client"
	"github.com/AlexZinkM/oasis-wallet/internal/common"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"
)

// Transfer is a validated, not yet signed SOL transfer
type Transfer struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
}

// BuildTransfer validates addresses and amount. It never touches the network.
func BuildTransfer(from, to string, lamports int64) (*Transfer, error) {
	if lamports <= 0 {
		return nil, model.ErrInvalidAmount
	}

	fromPubkey, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return nil, fmt.Errorf("sender %q: %w", from, model.ErrInvalidAddress)
	}
	toPubkey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return nil, fmt.Errorf("recipient %q: %w", to, model.ErrInvalidAddress)
	}

	return &Transfer{
		From:     fromPubkey,
		To:       toPubkey,
		Lamports: uint64(lamports),
	}, nil
}

// ChooseFeePayer returns the gas role only when it was asked for and is loaded and enabled
func ChooseFeePayer(useGasAccount, gasAccountAvailable bool) account.Role {
	if useGasAccount && gasAccountAvailable {
		return account.RoleGas
	}
	return account.RolePrimary
}

// IsValidAddress validates a Solana address
func IsValidAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// SignAndSubmit signs transfer with signerRole, lets feePayerRole pay the fee, submits and
// waits for confirmation. A stale blockhash is re-fetched exactly once.
// The signature is returned alongside ErrConfirmationTimeout so the caller can track it.
func (e *Engine) SignAndSubmit(ctx context.Context, transfer *Transfer, signerRole, feePayerRole account.Role) (solana.Signature, error) {
	if transfer == nil {
		return solana.Signature{}, errors.New("nil transfer")
	}

	// Resolve keys
	signer, err := e.accounts.PublicAddress(signerRole)
	if err != nil {
		return solana.Signature{}, err
	}
	if !signer.Equals(transfer.From) {
		return solana.Signature{}, fmt.Errorf("transfer sender %s is not the %s account", transfer.From, signerRole)
	}
	feePayer, err := e.accounts.PublicAddress(feePayerRole)
	if err != nil {
		return solana.Signature{}, err
	}
	twoSigners := !feePayer.Equals(signer)

	if err := e.checkBalances(ctx, transfer, signerRole, feePayerRole, twoSigners); err != nil {
		return solana.Signature{}, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tx, err := e.signTransfer(ctx, transfer, signerRole, feePayerRole, feePayer, twoSigners)
		if err != nil {
			return solana.Signature{}, err
		}

		sig, err := e.chain.SendTransaction(ctx, tx)
		if err == nil {
			e.logger.Info("transfer submitted",
				zap.Stringer("signature", sig),
				zap.Stringer("to", transfer.To),
				zap.Uint64("lamports", transfer.Lamports),
				zap.String("feePayer", string(feePayerRole)))
			return sig, e.confirm(ctx, sig)
		}
		if !errors.Is(err, client.ErrBlockhashNotFound) {
			return solana.Signature{}, submissionError(err)
		}

		lastErr = err
		e.logger.Warn("blockhash expired before submission, retrying", zap.Int("attempt", attempt+1))
	}

	return solana.Signature{}, fmt.Errorf("%w: %v", model.ErrBlockhashExpired, lastErr)
}

// checkBalances runs the pre-flight balance checks
func (e *Engine) checkBalances(ctx context.Context, transfer *Transfer, signerRole, feePayerRole account.Role, twoSigners bool) error {
	fee := uint64(MinFeeLamports)
	if twoSigners {
		fee *= 2
	}

	signerBalance, err := e.accounts.Balance(ctx, signerRole)
	if err != nil {
		return fmt.Errorf("failed to check balance: %w", err)
	}

	if !twoSigners {
		// Check SOL sufficiency (amount + fee)
		required := transfer.Lamports + fee
		if required < transfer.Lamports || signerBalance < required {
			var maxLamports uint64
			if signerBalance > fee {
				maxLamports = signerBalance - fee
			}
			return fmt.Errorf("%w. Transaction fee: %s SOL. Max you can send: %s SOL",
				model.ErrInsufficientBalance, common.LamportsToSOL(fee), common.LamportsToSOL(maxLamports))
		}
		return nil
	}

	if signerBalance < transfer.Lamports {
		return fmt.Errorf("%w. Have: %s SOL", model.ErrInsufficientBalance, common.LamportsToSOL(signerBalance))
	}

	feeBalance, err := e.accounts.Balance(ctx, feePayerRole)
	if err != nil {
		return fmt.Errorf("failed to check fee payer balance: %w", err)
	}
	if feeBalance < fee {
		return fmt.Errorf("%w (fee: %s SOL). Have: %s SOL",
			model.ErrInsufficientFeeBalance, common.LamportsToSOL(fee), common.LamportsToSOL(feeBalance))
	}
	return nil
}

// signTransfer builds the transfer against a fresh blockhash and signs it
func (e *Engine) signTransfer(ctx context.Context, transfer *Transfer, signerRole, feePayerRole account.Role, feePayer solana.PublicKey, twoSigners bool) (*solana.Transaction, error) {
	// Get latest blockhash right before signing
	blockhash, err := e.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	transferInstruction := system.NewTransferInstruction(
		transfer.Lamports,
		transfer.From,
		transfer.To,
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transferInstruction},
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if twoSigners {
		if _, err := e.accounts.SignTransaction(feePayerRole, tx); err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
	}
	if _, err := e.accounts.SignTransaction(signerRole, tx); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}
