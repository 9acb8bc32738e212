package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// ErrBlockhashNotFound is returned by SendTransaction when the node no longer knows
// the transaction's recent blockhash.
var ErrBlockhashNotFound = errors.New("blockhash not found")

// ErrRejected wraps any other broadcast or preflight rejection
var ErrRejected = errors.New("transaction rejected by node")

// Commitment levels reported by SignatureStatus
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus is the status of a submitted signature
type SignatureStatus struct {
	Slot       uint64
	Commitment string
	Err        string // empty when the transaction succeeded
}

// Confirmed reports whether the status reached at least confirmed commitment
func (s *SignatureStatus) Confirmed() bool {
	return s.Commitment == CommitmentConfirmed || s.Commitment == CommitmentFinalized
}

// TransactionDetails is the subset of a fetched transaction the wallet history needs
type TransactionDetails struct {
	Signature    solana.Signature
	Slot         uint64
	BlockTime    *time.Time
	AccountKeys  []solana.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
	Fee          uint64
	Failed       bool
}

// SolanaClient is a client for working with Solana RPC
type SolanaClient struct {
	rpcClient *rpc.Client
	rpcURL    string
	limiter   ratelimit.Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

// NewSolanaClient creates a new Solana client for rpcURL.
// rateLimit is requests per second, 0 disables throttling.
func NewSolanaClient(rpcURL string, rateLimit int, timeout time.Duration, logger *zap.Logger) *SolanaClient {
	limiter := ratelimit.NewUnlimited()
	if rateLimit > 0 {
		limiter = ratelimit.New(rateLimit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
		limiter:   limiter,
		timeout:   timeout,
		logger:    logger.With(zap.String("rpc", rpcURL)),
	}
}

// URL returns the RPC endpoint
func (c *SolanaClient) URL() string {
	return c.rpcURL
}

// call throttles and bounds a single RPC round trip
func (c *SolanaClient) call(ctx context.Context) (context.Context, context.CancelFunc) {
	c.limiter.Take()
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// GetBalance gets SOL balance in lamports
func (c *SolanaClient) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()

	balance, err := c.rpcClient.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get SOL balance: %w", err)
	}
	return balance.Value, nil
}

// GetLatestBlockhash gets a fresh blockhash (GetRecentBlockhash is deprecated)
func (c *SolanaClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()

	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	return recent.Value.Blockhash, nil
}

// SendTransaction broadcasts a signed transaction with preflight checks
func (c *SolanaClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()

	sig, err := c.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false, // Transaction validation before node
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		if isBlockhashNotFoundError(err) {
			return solana.Signature{}, fmt.Errorf("%w: %v", ErrBlockhashNotFound, err)
		}
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return sig, nil
}

// GetSignatureStatus returns the status of sig, or nil when the node has not seen it
func (c *SolanaClient) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()

	res, err := c.rpcClient.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return nil, nil
	}

	status := res.Value[0]
	out := &SignatureStatus{
		Slot:       status.Slot,
		Commitment: string(status.ConfirmationStatus),
	}
	if status.Err != nil {
		out.Err = fmt.Sprintf("%v", status.Err)
	}
	return out, nil
}

// GetSignaturesForAddress returns up to limit most recent signatures involving pubkey
func (c *SolanaClient) GetSignaturesForAddress(ctx context.Context, pubkey solana.PublicKey, limit int) ([]solana.Signature, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()

	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(
		ctx,
		pubkey,
		&rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	out := make([]solana.Signature, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Signature)
	}
	return out, nil
}

// GetTransaction fetches and flattens the transaction identified by sig
func (c *SolanaClient) GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionDetails, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()

	// maxVersion is hardcoded - new version support requires library update and rebuild anyway
	maxVersion := uint64(0)
	tx, err := c.rpcClient.GetTransaction(
		ctx,
		sig,
		&rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", sig, err)
	}
	if tx == nil || tx.Meta == nil || tx.Transaction == nil {
		return nil, fmt.Errorf("transaction %s has no metadata", sig)
	}

	decoded, err := tx.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", sig, err)
	}

	details := &TransactionDetails{
		Signature:    sig,
		Slot:         tx.Slot,
		AccountKeys:  decoded.Message.AccountKeys,
		PreBalances:  tx.Meta.PreBalances,
		PostBalances: tx.Meta.PostBalances,
		Fee:          tx.Meta.Fee,
		Failed:       tx.Meta.Err != nil,
	}
	if tx.BlockTime != nil {
		t := time.Unix(int64(*tx.BlockTime), 0)
		details.BlockTime = &t
	}
	return details, nil
}

// isBlockhashNotFoundError checks if the node rejected the transaction for a stale blockhash
func isBlockhashNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "blockhash not found") ||
		strings.Contains(errStr, "blockhashnotfound")
}
