package solana

import (
	"context"
	"sort"
	"sync"

	"github.com/AlexZinkM/oasis-wallet/internal/client"
	"github.com/AlexZinkM/oasis-wallet/internal/common"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FetchHistory reads up to limit recent SOL transfers involving pubkey, newest first.
// Transactions whose details cannot be fetched or carry no transfer are omitted.
func (e *Engine) FetchHistory(ctx context.Context, pubkey solana.PublicKey, limit int) ([]model.TransactionRecord, error) {
	if limit <= 0 || limit > model.MaxHistoryLimit {
		limit = model.MaxHistoryLimit
	}

	sigs, err := e.chain.GetSignaturesForAddress(ctx, pubkey, limit)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		records = make([]model.TransactionRecord, 0, len(sigs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyConcurrency)
	for _, sig := range sigs {
		g.Go(func() error {
			details, err := e.chain.GetTransaction(gctx, sig)
			if err != nil {
				e.logger.Debug("skipping transaction", zap.Stringer("signature", sig), zap.Error(err))
				return nil
			}
			record, ok := parseTransaction(details, pubkey)
			if !ok {
				return nil
			}
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		})
	}
	// workers never return errors, failed lookups are dropped
	_ = g.Wait()

	SortNewestFirst(records)
	return records, nil
}

// SortNewestFirst sorts records by time DESC, then slot DESC
func SortNewestFirst(records []model.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Slot > records[j].Slot
	})
}

// parseTransaction classifies a transaction relative to owner from its balance changes.
// The fee is added back to the owner's delta when owner paid it, so a transaction
// that only cost a fee is not a transfer.
func parseTransaction(tx *client.TransactionDetails, owner solana.PublicKey) (model.TransactionRecord, bool) {
	keys := tx.AccountKeys
	if len(tx.PreBalances) < len(keys) || len(tx.PostBalances) < len(keys) {
		return model.TransactionRecord{}, false
	}

	ownerIndex := -1
	for i, key := range keys {
		if key.Equals(owner) {
			ownerIndex = i
			break
		}
	}
	if ownerIndex < 0 {
		return model.TransactionRecord{}, false
	}

	// Fee payer is always the first account key
	isFeePayer := ownerIndex == 0
	delta := int64(tx.PostBalances[ownerIndex]) - int64(tx.PreBalances[ownerIndex])
	if isFeePayer {
		delta += int64(tx.Fee)
	}
	if delta == 0 {
		return model.TransactionRecord{}, false
	}

	record := model.TransactionRecord{
		Signature: tx.Signature.String(),
		Slot:      tx.Slot,
		Status:    model.StatusConfirmed,
	}
	if tx.Failed {
		record.Status = model.StatusFailed
	}
	if tx.BlockTime != nil {
		record.Timestamp = *tx.BlockTime
	}

	if delta > 0 {
		// Received SOL, sender is whoever lost lamports
		record.Direction = model.DirectionReceive
		record.Lamports = uint64(delta)
		for i, key := range keys {
			if i != ownerIndex && tx.PreBalances[i] > tx.PostBalances[i] {
				record.Counterparty = key.String()
				break
			}
		}
	} else {
		// Sent SOL, receiver is whoever gained lamports
		record.Direction = model.DirectionSend
		record.Lamports = uint64(-delta)
		for i, key := range keys {
			if i != ownerIndex && tx.PostBalances[i] > tx.PreBalances[i] {
				record.Counterparty = key.String()
				break
			}
		}
		if isFeePayer {
			record.FeeLamports = tx.Fee
		}
	}
	record.Amount = common.LamportsToSOL(record.Lamports)

	return record, true
}
