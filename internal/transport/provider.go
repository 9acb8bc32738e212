package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
)

// Provider is the API injected into pages
type Provider struct {
	client *Client
	ready  chan struct{}

	mu        sync.RWMutex
	connected bool
	publicKey solana.PublicKey
}

// NewProvider injects a provider calling through client. Ready is closed on return.
func NewProvider(client *Client) *Provider {
	p := &Provider{
		client: client,
		ready:  make(chan struct{}),
	}
	close(p.ready)
	return p
}

// Ready is closed once the provider is available to the page
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Connected reports whether Connect succeeded and Disconnect was not called since
func (p *Provider) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// PublicKey returns the connected wallet address
func (p *Provider) PublicKey() (solana.PublicKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.publicKey, p.connected
}

// Connect asks the user for a connection grant and returns the wallet address
func (p *Provider) Connect(ctx context.Context, title, icon string) (solana.PublicKey, error) {
	if pub, ok := p.PublicKey(); ok {
		return pub, nil
	}

	fields := map[string]any{"title": title}
	if icon != "" {
		fields["icon"] = icon
	}
	if err := p.client.Call(ctx, TypeConnect, fields, nil); err != nil {
		return solana.PublicKey{}, err
	}

	var address string
	if err := p.client.Call(ctx, TypeGetPublicKey, nil, &address); err != nil {
		return solana.PublicKey{}, err
	}
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("wallet returned %q: %w", address, model.ErrInvalidAddress)
	}

	p.mu.Lock()
	p.connected = true
	p.publicKey = pub
	p.mu.Unlock()
	return pub, nil
}

// Disconnect drops the connection grant
func (p *Provider) Disconnect(ctx context.Context) error {
	if err := p.client.Call(ctx, TypeDisconnect, nil, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.connected = false
	p.publicKey = solana.PublicKey{}
	p.mu.Unlock()
	return nil
}

// SignTransaction asks the wallet to sign tx
func (p *Provider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	signed, err := p.SignAllTransactions(ctx, []*solana.Transaction{tx})
	if err != nil {
		return nil, err
	}
	return signed[0], nil
}

// SignAllTransactions asks the wallet to sign every transaction in one decision
func (p *Provider) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	if !p.Connected() {
		return nil, model.ErrNotConnected
	}

	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		s, err := EncodeTransaction(tx)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, s)
	}

	var out []string
	if len(txs) == 1 {
		var single string
		if err := p.client.Call(ctx, TypeSignTransaction, map[string]any{"transaction": encoded[0]}, &single); err != nil {
			return nil, err
		}
		out = []string{single}
	} else if err := p.client.Call(ctx, TypeSignAllTransactions, map[string]any{"transactions": encoded}, &out); err != nil {
		return nil, err
	}

	signed := make([]*solana.Transaction, 0, len(out))
	for _, s := range out {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("malformed signed transaction: %w", err)
		}
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return nil, err
		}
		signed = append(signed, tx)
	}
	return signed, nil
}

// SignMessage asks the wallet to sign message
func (p *Provider) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	if !p.Connected() {
		return solana.Signature{}, model.ErrNotConnected
	}

	var sig Bytes
	if err := p.client.Call(ctx, TypeSignMessage, map[string]any{"message": Bytes(message)}, &sig); err != nil {
		return solana.Signature{}, err
	}
	if len(sig) != len(solana.Signature{}) {
		return solana.Signature{}, fmt.Errorf("malformed signature of %d bytes", len(sig))
	}
	var out solana.Signature
	copy(out[:], sig)
	return out, nil
}

// SendTransaction asks the wallet to sign and broadcast tx
func (p *Provider) SendTransaction(ctx context.Context, tx *solana.Transaction, opts *SendOptions) (solana.Signature, error) {
	if !p.Connected() {
		return solana.Signature{}, model.ErrNotConnected
	}

	encoded, err := EncodeTransaction(tx)
	if err != nil {
		return solana.Signature{}, err
	}
	fields := map[string]any{"transaction": encoded}
	if opts != nil {
		fields["options"] = opts
	}

	var sig string
	if err := p.client.Call(ctx, TypeSendTransaction, fields, &sig); err != nil {
		return solana.Signature{}, err
	}
	return solana.SignatureFromBase58(sig)
}
