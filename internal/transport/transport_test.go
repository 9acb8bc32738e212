package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/broker"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	origin       = "https://example.com"
)

var recipient = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

// testWallet signs with a real account store and counts every use of the keys
type testWallet struct {
	accounts *account.Store
	uses     atomic.Int32
}

func (w *testWallet) PublicKey() (solana.PublicKey, error) {
	return w.accounts.PublicAddress(account.RolePrimary)
}

func (w *testWallet) SignMessage(_ context.Context, msg []byte) (solana.Signature, error) {
	w.uses.Add(1)
	return w.accounts.SignBytes(account.RolePrimary, msg)
}

func (w *testWallet) SignTransactions(_ context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	w.uses.Add(1)
	for _, tx := range txs {
		if _, err := w.accounts.SignTransaction(account.RolePrimary, tx); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

func (w *testWallet) SendTransactions(ctx context.Context, txs []*solana.Transaction) ([]solana.Signature, error) {
	signed, err := w.SignTransactions(ctx, txs)
	if err != nil {
		return nil, err
	}
	return []solana.Signature{signed[0].Signatures[0]}, nil
}

type harness struct {
	wallet     *testWallet
	broker     *broker.Broker
	dispatcher *Dispatcher
	relay      *Relay
	provider *Provider
	pub      solana.PublicKey
}

func newHarness(t *testing.T, decisionTimeout time.Duration) *harness {
	t.Helper()
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	w := &testWallet{accounts: account.NewStore(nil)}
	pub, err := w.accounts.Unlock(testMnemonic)
	require.NoError(t, err)

	b, err := broker.New(store, w, zap.NewNop())
	require.NoError(t, err)

	d := NewDispatcher(b, w, decisionTimeout, zap.NewNop())
	relay := NewRelay(d, origin, time.Second, zap.NewNop())
	t.Cleanup(relay.Close)

	return &harness{
		wallet:     w,
		broker:     b,
		dispatcher: d,
		relay:      relay,
		provider:   NewProvider(relay.Client()),
		pub:        pub,
	}
}

// decide acts as the user: it waits for the current request of kind and resolves it
func (h *harness) decide(t *testing.T, kind broker.Kind, approve bool) {
	t.Helper()
	go func() {
		var req broker.Request
		ok := assert.Eventually(t, func() bool {
			var found bool
			req, found = h.broker.Current(kind)
			return found
		}, time.Second, time.Millisecond)
		if !ok {
			return
		}
		if approve {
			_, _ = h.broker.Approve(context.Background(), req.ID)
		} else {
			_, _ = h.broker.Reject(req.ID)
		}
	}()
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.decide(t, broker.KindConnection, true)
	pub, err := h.provider.Connect(context.Background(), "Example", "")
	require.NoError(t, err)
	require.Equal(t, h.pub, pub)
}

func unsignedTransfer(t *testing.T, from solana.PublicKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, recipient).Build()},
		solana.Hash{7},
		solana.TransactionPayer(from),
	)
	require.NoError(t, err)
	return tx
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	var perr *ProtocolError

	_, err := Decode(json.RawMessage(`{"type":"stealKeys"}`))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, Type("stealKeys"), perr.Type)

	_, err = Decode(json.RawMessage(`{"type":"signTransaction","transaction":42}`))
	assert.ErrorAs(t, err, &perr)

	_, err = Decode(json.RawMessage(`{"type":"signAllTransactions","transactions":[]}`))
	assert.ErrorAs(t, err, &perr)

	_, err = Decode(json.RawMessage(`{"type":"signMessage","message":[1,256]}`))
	assert.ErrorAs(t, err, &perr)

	_, err = Decode(json.RawMessage(`{"type":7}`))
	assert.ErrorAs(t, err, &perr)
}

func TestDecodeSubstitutesEmptyObjectForNonObjects(t *testing.T) {
	for _, raw := range []string{``, `null`, `[1,2]`, `"connect"`, `{broken`} {
		assert.JSONEq(t, `{}`, string(NormalizePayload(json.RawMessage(raw))), raw)

		_, err := Decode(json.RawMessage(raw))
		var perr *ProtocolError
		assert.ErrorAs(t, err, &perr, raw)
	}
}

func TestDecodeMessageBytesForms(t *testing.T) {
	fromArray, err := Decode(json.RawMessage(`{"type":"signMessage","message":[104,105]}`))
	require.NoError(t, err)
	fromBase64, err := Decode(json.RawMessage(`{"type":"signMessage","message":"aGk="}`))
	require.NoError(t, err)

	assert.Equal(t, Bytes("hi"), fromArray.(*SignMessage).Message)
	assert.Equal(t, fromArray, fromBase64)

	out, err := json.Marshal(Bytes("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `[104,105]`, string(out))
}

func TestTransactionWireRoundTrip(t *testing.T) {
	tx := unsignedTransfer(t, recipient)

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	decoded, err := DecodeTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Message.RecentBlockhash, decoded.Message.RecentBlockhash)
	assert.Equal(t, tx.Message.AccountKeys, decoded.Message.AccountKeys)

	_, err = DecodeTransaction([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestClientTimeoutDropsLateResponse(t *testing.T) {
	var sent atomic.Value
	c := NewClient(func(_ context.Context, env []byte) error {
		sent.Store(env)
		return nil
	}, 20*time.Millisecond)

	err := c.Call(context.Background(), TypeGetPublicKey, nil, nil)
	assert.ErrorIs(t, err, model.ErrTimeout)
	assert.Zero(t, c.Pending())

	var env Envelope
	require.NoError(t, json.Unmarshal(sent.Load().([]byte), &env))
	late, err := json.Marshal(Response{ID: env.ID, Success: true, Data: "late"})
	require.NoError(t, err)
	assert.False(t, c.Deliver(late))
	assert.False(t, c.Deliver([]byte(`not json`)))
	assert.False(t, c.Deliver([]byte(`{"id":"unknown","success":true}`)))
}

func TestClientMatchesResponsesById(t *testing.T) {
	var c *Client
	c = NewClient(func(_ context.Context, raw []byte) error {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		go func() {
			other, _ := json.Marshal(Response{ID: "someone-else", Success: true, Data: "wrong"})
			c.Deliver(other)
			resp, _ := json.Marshal(Response{ID: env.ID, Success: true, Data: "right"})
			c.Deliver(resp)
			// duplicates are ignored
			c.Deliver(resp)
		}()
		return nil
	}, time.Second)

	var out string
	require.NoError(t, c.Call(context.Background(), TypeGetPublicKey, nil, &out))
	assert.Equal(t, "right", out)
}

func TestNotConnectedRequests(t *testing.T) {
	h := newHarness(t, time.Second)
	c := h.relay.Client()

	err := c.Call(context.Background(), TypeGetPublicKey, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "Not connected. Call connect() first.", err.Error())

	err = c.Call(context.Background(), TypeSignMessage, map[string]any{"message": []int{1}}, nil)
	assert.EqualError(t, err, model.ErrNotConnected.Error())

	_, err = h.provider.SignMessage(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, model.ErrNotConnected)
	assert.Zero(t, h.wallet.uses.Load())
}

func TestMalformedPayloadGetsErrorResponse(t *testing.T) {
	h := newHarness(t, time.Second)
	d := NewDispatcher(h.broker, h.wallet, time.Second, nil)

	resp := d.Handle(context.Background(), origin, Envelope{ID: "1", Message: json.RawMessage(`[1,2,3]`)})
	assert.False(t, resp.Success)
	assert.Equal(t, "1", resp.ID)
	assert.Contains(t, resp.Error, "protocol error")

	resp = d.Handle(context.Background(), "", Envelope{ID: "2", Message: json.RawMessage(`{"type":"connect"}`)})
	assert.False(t, resp.Success)
}

func TestConnectApproveAndDisconnect(t *testing.T) {
	h := newHarness(t, time.Second)
	<-h.provider.Ready()

	h.connect(t)
	assert.True(t, h.provider.Connected())
	site, ok := h.broker.Site(origin)
	require.True(t, ok)
	assert.Equal(t, "Example", site.Title)
	assert.False(t, site.Permissions.AutoApprove)

	require.NoError(t, h.provider.Disconnect(context.Background()))
	assert.False(t, h.provider.Connected())
	assert.False(t, h.broker.IsConnected(origin))
}

func TestSignTransactionRejectedByUser(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	usesAfterConnect := h.wallet.uses.Load()

	h.decide(t, broker.KindTransaction, false)
	signed, err := h.provider.SignTransaction(context.Background(), unsignedTransfer(t, h.pub))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Nil(t, signed)
	assert.Equal(t, usesAfterConnect, h.wallet.uses.Load())
	assert.True(t, h.wallet.accounts.Unlocked())
}

func TestSignTransactionApproved(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	h.decide(t, broker.KindTransaction, true)
	signed, err := h.provider.SignTransaction(context.Background(), unsignedTransfer(t, h.pub))
	require.NoError(t, err)

	content, err := signed.Message.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 1)
	assert.True(t, crypto.Verify(h.pub, content, signed.Signatures[0]))
}

func TestSignAllAndSendTransaction(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	h.decide(t, broker.KindTransaction, true)
	signed, err := h.provider.SignAllTransactions(context.Background(), []*solana.Transaction{
		unsignedTransfer(t, h.pub),
		unsignedTransfer(t, h.pub),
	})
	require.NoError(t, err)
	assert.Len(t, signed, 2)

	h.decide(t, broker.KindTransaction, true)
	sig, err := h.provider.SendTransaction(context.Background(), unsignedTransfer(t, h.pub), &SendOptions{SkipPreflight: true})
	require.NoError(t, err)
	assert.NotEqual(t, solana.Signature{}, sig)
}

func TestSignMessageApproved(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	h.decide(t, broker.KindMessage, true)
	sig, err := h.provider.SignMessage(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.True(t, crypto.Verify(h.pub, []byte("hello"), sig))
}

func TestDecisionTimeoutCancelsRequest(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)

	_, err := h.provider.Connect(context.Background(), "Example", "")
	require.Error(t, err)
	assert.Equal(t, model.ErrTimeout.Error(), err.Error())

	assert.Eventually(t, func() bool {
		_, ok := h.broker.Current(broker.KindConnection)
		return !ok
	}, time.Second, time.Millisecond)
	assert.False(t, h.broker.IsConnected(origin))
}

func TestPageTimeoutCancelsPendingRequest(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	// the page gives up long before the user decision timeout
	impatient := NewRelay(h.dispatcher, origin, 50*time.Millisecond, zap.NewNop())
	t.Cleanup(impatient.Close)

	err := impatient.Client().Call(context.Background(), TypeSignMessage, map[string]any{"message": Bytes("hi")}, nil)
	require.Error(t, err)
	assert.Equal(t, model.ErrTimeout.Error(), err.Error())

	assert.Eventually(t, func() bool {
		_, ok := h.broker.Current(broker.KindMessage)
		return !ok
	}, 500*time.Millisecond, time.Millisecond)
	assert.Zero(t, h.wallet.uses.Load())
}

func TestRequestsCarrySiteTitle(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.provider.SignMessage(context.Background(), []byte("hi"))
		done <- err
	}()

	var req broker.Request
	require.Eventually(t, func() bool {
		var ok bool
		req, ok = h.broker.Current(broker.KindMessage)
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, origin, req.Meta.Origin)
	assert.Equal(t, "Example", req.Meta.Title)

	_, err := h.broker.Reject(req.ID)
	require.NoError(t, err)
	assert.Error(t, <-done)
}

func TestLockedWalletRefusesSigning(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	h.wallet.accounts.Lock()

	err := h.relay.Client().Call(context.Background(), TypeGetPublicKey, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), model.ErrNotUnlocked.Error())
}
