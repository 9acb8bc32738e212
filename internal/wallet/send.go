package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/common"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	engine "github.com/AlexZinkM/oasis-wallet/solana"

	"go.uber.org/zap"
)

// currentEngine returns the engine bound to the current network
func (w *Wallet) currentEngine() *engine.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine
}

// Send transfers SOL from the primary account. The gas account pays the fee when
// asked for and available. Successful and still confirming sends are tracked locally
// until they show up in the fetched history.
func (w *Wallet) Send(ctx context.Context, req model.PayRequest) (*model.PayResponse, error) {
	w.touch()

	// Check cooldown
	w.payMu.Lock()
	defer w.payMu.Unlock()

	if !w.lastPay.IsZero() && w.payCooldown > 0 {
		if elapsed := time.Since(w.lastPay); elapsed < w.payCooldown {
			remaining := w.payCooldown - elapsed
			return nil, &model.CooldownError{Remaining: remaining.Round(time.Second).String()}
		}
	}

	from, err := w.accounts.PublicAddress(account.RolePrimary)
	if err != nil {
		return nil, err
	}

	// Convert amount to lamports (string-based, no float precision loss)
	lamports, err := common.SOLToLamports(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidAmount, err)
	}
	if lamports > math.MaxInt64 {
		return nil, fmt.Errorf("%w: amount too large", model.ErrInvalidAmount)
	}

	transfer, err := engine.BuildTransfer(from.String(), req.ToAddress, int64(lamports))
	if err != nil {
		return nil, err
	}
	feePayer := engine.ChooseFeePayer(req.UseGasAccount, w.gasAvailable())

	sig, err := w.currentEngine().SignAndSubmit(ctx, transfer, account.RolePrimary, feePayer)
	if err != nil && !errors.Is(err, model.ErrConfirmationTimeout) {
		return nil, err
	}

	status := model.StatusConfirmed
	if err != nil {
		status = model.StatusProcessing
	}
	var fee uint64
	if feePayer == account.RolePrimary {
		fee = engine.MinFeeLamports
	}
	w.track(model.TransactionRecord{
		Signature:    sig.String(),
		Timestamp:    time.Now(),
		Lamports:     transfer.Lamports,
		Amount:       common.LamportsToSOL(transfer.Lamports),
		Direction:    model.DirectionSend,
		Counterparty: transfer.To.String(),
		FeeLamports:  fee,
		Status:       status,
	})

	// Save transaction time
	w.lastPay = time.Now()

	resp := &model.PayResponse{
		TxID:        sig.String(),
		ExplorerURL: w.ExplorerURL(sig.String()),
	}
	if err != nil {
		w.logger.Warn("transfer not confirmed yet", zap.String("signature", resp.TxID))
		return resp, err
	}
	return resp, nil
}

// track records a local send until the chain history includes it
func (w *Wallet) track(record model.TransactionRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent = append([]model.TransactionRecord{record}, w.recent...)
	if len(w.recent) > model.MaxHistoryLimit {
		w.recent = w.recent[:model.MaxHistoryLimit]
	}
}

// History returns recent transfers of the primary account, newest first
func (w *Wallet) History(ctx context.Context, req model.HistoryRequest) (*model.HistoryResponse, error) {
	w.touch()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = w.historyLimit
	}

	pub, err := w.accounts.PublicAddress(account.RolePrimary)
	if err != nil {
		return nil, err
	}

	fetched, err := w.currentEngine().FetchHistory(ctx, pub, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	// Merge local sends the chain does not report yet, forgetting the ones it does
	seen := make(map[string]bool, len(fetched))
	for _, r := range fetched {
		seen[r.Signature] = true
	}
	w.mu.Lock()
	pending := w.recent[:0:0]
	for _, r := range w.recent {
		if !seen[r.Signature] {
			pending = append(pending, r)
		}
	}
	w.recent = pending
	w.mu.Unlock()

	records := append(fetched, pending...)
	engine.SortNewestFirst(records)

	out := make([]model.TransactionRecord, 0, limit)
	for _, r := range records {
		if req.Direction != nil && r.Direction != *req.Direction {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}

	return &model.HistoryResponse{
		Address:      pub.String(),
		Transactions: out,
	}, nil
}

// Balance fetches the balance of role
func (w *Wallet) Balance(ctx context.Context, role account.Role) (*model.BalanceResponse, error) {
	w.touch()

	pub, err := w.accounts.PublicAddress(role)
	if err != nil {
		return nil, err
	}
	lamports, err := w.accounts.Balance(ctx, role)
	if err != nil {
		return nil, err
	}
	return &model.BalanceResponse{
		Role:     string(role),
		Address:  pub.String(),
		Lamports: lamports,
		SOL:      common.LamportsToSOL(lamports),
	}, nil
}

// ReceiveQR returns the primary address and its QR code. It works while locked.
func (w *Wallet) ReceiveQR() (*model.ReceiveResponse, error) {
	address, err := w.Address()
	if err != nil {
		return nil, err
	}
	qr, err := engine.GenerateQRCode(address)
	if err != nil {
		return nil, err
	}
	return &model.ReceiveResponse{Address: address, QR: qr}, nil
}
