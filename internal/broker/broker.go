// Package broker arbitrates dApp requests. Every request starts pending and is resolved
// exactly once, by the user or by its caller giving up. Per kind, only the oldest
// pending request is current and shown to the user; the rest wait in FIFO order.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/logging"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Signer performs the cryptographic work behind an approval
type Signer interface {
	SignMessage(ctx context.Context, message []byte) (solana.Signature, error)
	// SignTransactions and SendTransactions return whatever succeeded along with the
	// aggregated error of what did not.
	SignTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
	SendTransactions(ctx context.Context, txs []*solana.Transaction) ([]solana.Signature, error)
}

// SiteStore persists the connected sites collection
type SiteStore interface {
	LoadSites() ([]model.ConnectedSite, error)
	SaveSites(sites []model.ConnectedSite) error
}

// Broker holds pending requests and connected sites
type Broker struct {
	// decide serializes approvals and rejections; the signing work runs under it
	// but outside mu so reads stay responsive
	decide sync.Mutex

	mu       sync.Mutex
	requests map[string]*entry
	queues   map[Kind][]string
	sites    []model.ConnectedSite
	enabled  bool

	signer Signer
	store  SiteStore
	now    func() time.Time
	logger *zap.Logger
}

// New creates a broker and loads the persisted connected sites
func New(store SiteStore, signer Signer, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sites, err := store.LoadSites()
	if err != nil {
		return nil, fmt.Errorf("failed to load connected sites: %w", err)
	}
	return &Broker{
		requests: make(map[string]*entry),
		queues:   make(map[Kind][]string),
		sites:    sites,
		enabled:  true,
		signer:   signer,
		store:    store,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// SetEnabled toggles whether new requests are accepted
func (b *Broker) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Enabled reports whether new requests are accepted
func (b *Broker) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Submit creates a pending request. A connection request from an origin with
// autoApprove resolves approved at once and is never current.
func (b *Broker) Submit(kind Kind, meta Meta, payload Payload) (Request, error) {
	if !validKind(kind) {
		return Request{}, fmt.Errorf("unknown request kind %q", kind)
	}
	if meta.Origin == "" {
		return Request{}, errors.New("request has no origin")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return Request{}, model.ErrDAppsDisabled
	}

	e := &entry{
		req: Request{
			ID:        uuid.NewString(),
			Kind:      kind,
			Meta:      meta,
			CreatedAt: b.now(),
			Payload:   payload,
			State:     StatePending,
		},
		done: make(chan struct{}),
	}
	b.requests[e.req.ID] = e

	if kind == KindConnection {
		if i := b.siteIndex(meta.Origin); i >= 0 && b.sites[i].Permissions.AutoApprove {
			e.resolve(StateApproved, &Result{}, nil)
			b.logger.Info("connection auto-approved", logging.Origin(meta.Origin), logging.RequestID(e.req.ID))
			return e.req, nil
		}
	}

	b.queues[kind] = append(b.queues[kind], e.req.ID)
	b.logger.Info("request submitted",
		zap.String("kind", string(kind)),
		logging.Origin(meta.Origin),
		logging.RequestID(e.req.ID))
	return e.req, nil
}

// Approve performs the request's operation and resolves it approved.
// Downstream failures still resolve the request; the error is recorded on it and returned.
func (b *Broker) Approve(ctx context.Context, id string) (Request, error) {
	b.decide.Lock()
	defer b.decide.Unlock()

	req, err := b.pending(id)
	if err != nil {
		return Request{}, err
	}

	result, opErr := b.perform(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.requests[id]
	if e == nil {
		return Request{}, fmt.Errorf("request %s: %w", id, model.ErrRequestNotFound)
	}
	b.finish(e, StateApproved, result, opErr)
	if opErr != nil {
		b.logger.Warn("request approved with errors", logging.RequestID(id), zap.Error(opErr))
	} else {
		b.logger.Info("request approved", logging.RequestID(id), logging.Origin(req.Meta.Origin))
	}
	return e.req, opErr
}

func (b *Broker) perform(ctx context.Context, req Request) (*Result, error) {
	switch req.Kind {
	case KindConnection:
		return &Result{}, b.upsertSite(req.Meta)

	case KindMessage:
		if b.signer == nil {
			return &Result{}, model.ErrNotUnlocked
		}
		sig, err := b.signer.SignMessage(ctx, req.Payload.Message)
		if err != nil {
			return &Result{}, err
		}
		return &Result{Signatures: []solana.Signature{sig}}, nil

	case KindTransaction:
		if b.signer == nil {
			return &Result{}, model.ErrNotUnlocked
		}
		if req.Payload.Mode == ModeSend {
			sigs, err := b.signer.SendTransactions(ctx, req.Payload.Transactions)
			return &Result{Signatures: sigs}, err
		}
		signed, err := b.signer.SignTransactions(ctx, req.Payload.Transactions)
		result := &Result{Transactions: signed}
		for _, tx := range signed {
			if len(tx.Signatures) > 0 {
				result.Signatures = append(result.Signatures, tx.Signatures[0])
			}
		}
		return result, err
	}
	return &Result{}, fmt.Errorf("unknown request kind %q", req.Kind)
}

// Reject resolves a pending request rejected by the user
func (b *Broker) Reject(id string) (Request, error) {
	return b.Cancel(id, model.ErrRequestRejected)
}

// Cancel resolves a pending request rejected with reason, for callers that gave up on it
func (b *Broker) Cancel(id string, reason error) (Request, error) {
	if reason == nil {
		reason = model.ErrRequestRejected
	}

	b.decide.Lock()
	defer b.decide.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.requests[id]
	if e == nil || e.req.State != StatePending {
		return Request{}, fmt.Errorf("request %s: %w", id, model.ErrRequestNotFound)
	}
	b.finish(e, StateRejected, nil, reason)
	b.logger.Info("request rejected", logging.RequestID(id), zap.Error(reason))
	return e.req, nil
}

// Wait blocks until the request is resolved or ctx is done
func (b *Broker) Wait(ctx context.Context, id string) (Request, error) {
	b.mu.Lock()
	e := b.requests[id]
	b.mu.Unlock()
	if e == nil {
		return Request{}, fmt.Errorf("request %s: %w", id, model.ErrRequestNotFound)
	}

	select {
	case <-e.done:
		b.mu.Lock()
		defer b.mu.Unlock()
		return e.req, nil
	case <-ctx.Done():
		return Request{}, ctx.Err()
	}
}

// Get returns a snapshot of the request
func (b *Broker) Get(id string) (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.requests[id]
	if !ok {
		return Request{}, false
	}
	return e.req, true
}

// Current returns the request of kind surfaced to the user, if any
func (b *Broker) Current(kind Kind) (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[kind]
	if len(q) == 0 {
		return Request{}, false
	}
	return b.requests[q[0]].req, true
}

// Pending returns the pending requests of kind, current first
func (b *Broker) Pending(kind Kind) []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Request, 0, len(b.queues[kind]))
	for _, id := range b.queues[kind] {
		out = append(out, b.requests[id].req)
	}
	return out
}

// Release forgets a resolved request
func (b *Broker) Release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.requests[id]; ok && e.req.Resolved() {
		delete(b.requests, id)
	}
}

// ClearResolved forgets every resolved request
func (b *Broker) ClearResolved() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for id, e := range b.requests {
		if e.req.Resolved() {
			delete(b.requests, id)
			n++
		}
	}
	return n
}

// Clear rejects every pending request and forgets all requests.
// An approval in flight finishes first.
func (b *Broker) Clear() {
	b.decide.Lock()
	defer b.decide.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.requests {
		if !e.req.Resolved() {
			e.resolve(StateRejected, nil, model.ErrRequestRejected)
		}
	}
	b.logger.Info("requests cleared", zap.Int("count", len(b.requests)))
	b.requests = make(map[string]*entry)
	b.queues = make(map[Kind][]string)
}

// pending returns a snapshot of a request that is still pending
func (b *Broker) pending(id string) (Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.requests[id]
	if e == nil || e.req.State != StatePending {
		return Request{}, fmt.Errorf("request %s: %w", id, model.ErrRequestNotFound)
	}
	return e.req, nil
}

// finish resolves e and drops it from its queue, promoting the next request.
// Caller holds mu.
func (b *Broker) finish(e *entry, state State, result *Result, err error) {
	e.resolve(state, result, err)

	q := b.queues[e.req.Kind]
	for i, id := range q {
		if id == e.req.ID {
			b.queues[e.req.Kind] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
}
