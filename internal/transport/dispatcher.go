package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/broker"
	"github.com/AlexZinkM/oasis-wallet/internal/logging"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds how long a dApp request waits for the user.
// It never exceeds the page's own call timeout.
const DefaultRequestTimeout = DefaultCallTimeout

// Handler answers one page request. origin is established by the caller from the
// sender, never from the message.
type Handler interface {
	Handle(ctx context.Context, origin string, env Envelope) Response
}

// KeyProvider exposes the unlocked wallet address
type KeyProvider interface {
	PublicKey() (solana.PublicKey, error)
}

// Dispatcher routes decoded page requests into the broker
type Dispatcher struct {
	broker  *broker.Broker
	keys    KeyProvider
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each wait for a user decision.
func NewDispatcher(b *broker.Broker, keys KeyProvider, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		broker:  b,
		keys:    keys,
		timeout: timeout,
		logger:  logger,
	}
}

// Handle decodes and serves env. Every failure becomes an unsuccessful Response.
func (d *Dispatcher) Handle(ctx context.Context, origin string, env Envelope) Response {
	data, err := d.handle(ctx, origin, env.Message)
	if err != nil {
		d.logger.Debug("dApp request failed", logging.Origin(origin), zap.String("id", env.ID), zap.Error(err))
		return Response{ID: env.ID, Success: false, Error: err.Error()}
	}
	return Response{ID: env.ID, Success: true, Data: data}
}

func (d *Dispatcher) handle(ctx context.Context, origin string, raw []byte) (any, error) {
	if origin == "" {
		return nil, &ProtocolError{Reason: "unknown sender origin"}
	}
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case *Connect:
		title := m.Title
		if title == "" {
			title = origin
		}
		if _, err := d.decide(ctx, broker.KindConnection, broker.Meta{Origin: origin, Title: title, Icon: m.Icon}, broker.Payload{}); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case *Disconnect:
		if err := d.broker.Disconnect(origin); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case *GetPublicKey:
		pub, err := d.connectedKey(origin)
		if err != nil {
			return nil, err
		}
		return pub.String(), nil

	case *SignTransaction:
		signed, err := d.transactions(ctx, origin, broker.ModeSign, m.Transaction)
		if err != nil {
			return nil, err
		}
		return signed[0], nil

	case *SignAllTransactions:
		return d.transactions(ctx, origin, broker.ModeSignAll, m.Transactions...)

	case *SendTransaction:
		tx, err := DecodeTransaction(m.Transaction)
		if err != nil {
			return nil, &ProtocolError{Type: TypeSendTransaction, Reason: err.Error()}
		}
		if _, err := d.connectedKey(origin); err != nil {
			return nil, err
		}
		req, err := d.decide(ctx, broker.KindTransaction, d.meta(origin), broker.Payload{
			Transactions: []*solana.Transaction{tx},
			Mode:         broker.ModeSend,
		})
		if err != nil {
			return nil, err
		}
		if len(req.Result.Signatures) == 0 {
			return nil, model.ErrSubmissionFailed
		}
		return req.Result.Signatures[0].String(), nil

	case *SignMessage:
		if _, err := d.connectedKey(origin); err != nil {
			return nil, err
		}
		req, err := d.decide(ctx, broker.KindMessage, d.meta(origin), broker.Payload{Message: m.Message})
		if err != nil {
			return nil, err
		}
		return Bytes(req.Result.Signatures[0][:]), nil
	}

	return nil, &ProtocolError{Type: msg.Type(), Reason: "unsupported message"}
}

// transactions submits a signing request and returns the signed wire transactions
func (d *Dispatcher) transactions(ctx context.Context, origin string, mode broker.Mode, raws ...Bytes) ([]string, error) {
	txs := make([]*solana.Transaction, 0, len(raws))
	for i, raw := range raws {
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return nil, &ProtocolError{Type: TypeSignTransaction, Reason: fmt.Sprintf("transaction %d: %v", i, err)}
		}
		txs = append(txs, tx)
	}
	if _, err := d.connectedKey(origin); err != nil {
		return nil, err
	}

	req, err := d.decide(ctx, broker.KindTransaction, d.meta(origin), broker.Payload{
		Transactions: txs,
		Mode:         mode,
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(req.Result.Transactions))
	for _, tx := range req.Result.Transactions {
		encoded, err := EncodeTransaction(tx)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	if len(out) != len(txs) {
		return nil, model.ErrSubmissionFailed
	}
	return out, nil
}

// connectedKey checks the origin's grant and the lock state
func (d *Dispatcher) connectedKey(origin string) (solana.PublicKey, error) {
	if !d.broker.IsConnected(origin) {
		return solana.PublicKey{}, model.ErrNotConnected
	}
	return d.keys.PublicKey()
}

// meta describes a connected origin the way it introduced itself
func (d *Dispatcher) meta(origin string) broker.Meta {
	site, _ := d.broker.Site(origin)
	return broker.Meta{Origin: origin, Title: site.Title, Icon: site.Icon}
}

// decide submits a request and waits for its resolution, cancelling it when the
// wait times out or the caller goes away
func (d *Dispatcher) decide(ctx context.Context, kind broker.Kind, meta broker.Meta, payload broker.Payload) (broker.Request, error) {
	req, err := d.broker.Submit(kind, meta, payload)
	if err != nil {
		return broker.Request{}, err
	}
	defer d.broker.Release(req.ID)

	waitCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resolved, err := d.broker.Wait(waitCtx, req.ID)
	if err != nil {
		reason := model.ErrTimeout
		if ctx.Err() != nil {
			reason = fmt.Errorf("%w: caller went away", model.ErrTimeout)
		}
		if _, cancelErr := d.broker.Cancel(req.ID, reason); !errors.Is(cancelErr, model.ErrRequestNotFound) {
			return broker.Request{}, reason
		}
		// resolved while we were giving up
		var ok bool
		if resolved, ok = d.broker.Get(req.ID); !ok || !resolved.Resolved() {
			return broker.Request{}, reason
		}
	}

	if resolved.State == broker.StateRejected {
		if resolved.Err != nil {
			return resolved, resolved.Err
		}
		return resolved, model.ErrRequestRejected
	}
	if resolved.Err != nil {
		return resolved, resolved.Err
	}
	return resolved, nil
}
