// Package solana builds, signs, submits and reads back SOL transfers
package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/client"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const (
	// MinFeeLamports is the base fee per signature (0.000005 SOL)
	MinFeeLamports = 5000

	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = time.Second
	historyConcurrency    = 8
)

// ChainClient is the subset of the RPC client the engine needs
type ChainClient interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*client.SignatureStatus, error)
	GetSignaturesForAddress(ctx context.Context, pubkey solana.PublicKey, limit int) ([]solana.Signature, error)
	GetTransaction(ctx context.Context, sig solana.Signature) (*client.TransactionDetails, error)
}

// Signer is the subset of the account store the engine signs with
type Signer interface {
	Has(role account.Role) bool
	PublicAddress(role account.Role) (solana.PublicKey, error)
	Balance(ctx context.Context, role account.Role) (uint64, error)
	SignTransaction(role account.Role, tx *solana.Transaction) (*solana.Transaction, error)
}

// Options tunes confirmation polling
type Options struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Engine submits transfers to one chain with keys from one account store
type Engine struct {
	chain          ChainClient
	accounts       Signer
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *zap.Logger
}

// NewEngine creates a transaction engine
func NewEngine(chain ChainClient, accounts Signer, opts Options, logger *zap.Logger) *Engine {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		chain:          chain,
		accounts:       accounts,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		logger:         logger,
	}
}

// SubmitSigned broadcasts an already signed transaction and waits for confirmation.
// A stale blockhash is reported as ErrBlockhashExpired since the engine cannot re-sign it.
func (e *Engine) SubmitSigned(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := e.chain.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, submissionError(err)
	}
	return sig, e.confirm(ctx, sig)
}

// RefreshBlockhash sets a fresh blockhash on tx and drops any signatures,
// which the new message would invalidate anyway
func (e *Engine) RefreshBlockhash(ctx context.Context, tx *solana.Transaction) error {
	hash, err := e.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return err
	}
	tx.Message.RecentBlockhash = hash
	tx.Signatures = nil
	return nil
}

// confirm polls the signature status until it reaches confirmed commitment
func (e *Engine) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		status, err := e.chain.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			// transient RPC failures are retried until the deadline
			e.logger.Debug("signature status lookup failed", zap.Stringer("signature", sig), zap.Error(err))
		case status == nil:
		case status.Err != "":
			return fmt.Errorf("%w: transaction %s failed: %s", model.ErrSubmissionFailed, sig, status.Err)
		case status.Confirmed():
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", model.ErrConfirmationTimeout, sig)
		case <-ticker.C:
		}
	}
}

// submissionError maps a broadcast error onto the wallet error taxonomy
func submissionError(err error) error {
	if errors.Is(err, client.ErrBlockhashNotFound) {
		return fmt.Errorf("%w: %v", model.ErrBlockhashExpired, err)
	}
	return fmt.Errorf("%w: %v", model.ErrSubmissionFailed, err)
}
