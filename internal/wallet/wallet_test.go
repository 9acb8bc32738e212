package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/broker"
	"github.com/AlexZinkM/oasis-wallet/internal/client"
	"github.com/AlexZinkM/oasis-wallet/internal/common"
	"github.com/AlexZinkM/oasis-wallet/internal/config"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/storage"
	"github.com/AlexZinkM/oasis-wallet/internal/transport"
	engine "github.com/AlexZinkM/oasis-wallet/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	password     = "correcthorse1"
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	dappOrigin   = "https://example.com"
)

var recipient = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

type fakeChain struct {
	mu       sync.Mutex
	network  string
	balances map[solana.PublicKey]uint64
	sent     []*solana.Transaction
	history  []solana.Signature
	details  map[solana.Signature]*client.TransactionDetails
}

func (f *fakeChain) GetBalance(_ context.Context, pub solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[pub], nil
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{42}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeChain) GetSignatureStatus(context.Context, solana.Signature) (*client.SignatureStatus, error) {
	return &client.SignatureStatus{Commitment: client.CommitmentFinalized}, nil
}

func (f *fakeChain) GetSignaturesForAddress(context.Context, solana.PublicKey, int) ([]solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeChain) GetTransaction(_ context.Context, sig solana.Signature) (*client.TransactionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.details[sig]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeChain) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	store  *storage.Store
	chains map[string]*fakeChain
	opts   Options
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{store: store, chains: make(map[string]*fakeChain)}
	env.opts = Options{
		Network: config.NetworkDevnet,
		Chain: func(network string) (Chain, error) {
			if c, ok := env.chains[network]; ok {
				return c, nil
			}
			c := &fakeChain{
				network:  network,
				balances: make(map[solana.PublicKey]uint64),
				details:  make(map[solana.Signature]*client.TransactionDetails),
			}
			env.chains[network] = c
			return c, nil
		},
		Vault:      crypto.NewVault(crypto.Params{N: 16, R: 8, P: 1}),
		SessionTTL: time.Hour,
		Engine: engine.Options{
			ConfirmTimeout: time.Second,
			PollInterval:   time.Millisecond,
		},
	}
	return env
}

func (e *testEnv) open(t *testing.T) *Wallet {
	t.Helper()
	w, err := New(e.store, e.opts, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func (e *testEnv) chain() *fakeChain {
	return e.chains[config.NetworkDevnet]
}

func TestCreateLockUnlockKeepsAddress(t *testing.T) {
	w := newEnv(t).open(t)

	address, mnemonic, err := w.Create([]byte(password))
	require.NoError(t, err)
	assert.Len(t, strings.Fields(mnemonic), 12)
	assert.True(t, crypto.ValidateMnemonic(mnemonic))
	assert.True(t, w.Unlocked())

	w.Lock()
	assert.False(t, w.Unlocked())
	_, err = w.PublicKey()
	assert.ErrorIs(t, err, model.ErrNotUnlocked)

	unlocked, err := w.Unlock([]byte(password))
	require.NoError(t, err)
	assert.Equal(t, address, unlocked)

	pub, err := w.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, address, pub.String())
}

func TestUnlockWrongPasswordStaysLocked(t *testing.T) {
	w := newEnv(t).open(t)
	_, _, err := w.Create([]byte(password))
	require.NoError(t, err)
	w.Lock()

	_, err = w.Unlock([]byte("wrong123456"))
	assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	assert.False(t, w.Unlocked())

	status, err := w.Status()
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.False(t, status.Unlocked)
}

func TestCreateAndImportValidation(t *testing.T) {
	w := newEnv(t).open(t)

	_, err := w.Import("abandon abandon abandon", []byte(password))
	assert.ErrorIs(t, err, model.ErrInvalidMnemonic)

	_, _, err = w.Create([]byte("short"))
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = w.Unlock([]byte(password))
	assert.ErrorIs(t, err, model.ErrWalletNotFound)

	address, err := w.Import("  Abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon ABOUT ", []byte(password))
	require.NoError(t, err)
	kp, err := crypto.DeriveKeypair(testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey().String(), address)

	_, _, err = w.Create([]byte(password))
	assert.ErrorIs(t, err, model.ErrWalletExists)
	_, err = w.Import(testMnemonic, []byte(password))
	assert.ErrorIs(t, err, model.ErrWalletExists)
}

func TestAddressSurvivesRestart(t *testing.T) {
	env := newEnv(t)
	first := env.open(t)
	address, err := first.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	first.Close()

	second := env.open(t)
	assert.False(t, second.Unlocked())
	locked, err := second.Address()
	require.NoError(t, err)
	assert.Equal(t, address, locked)

	unlocked, err := second.Unlock([]byte(password))
	require.NoError(t, err)
	assert.Equal(t, address, unlocked)
}

func TestConnectionApprovalAndAutoApprove(t *testing.T) {
	w := newEnv(t).open(t)
	_, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	b := w.Broker()

	d := transport.NewDispatcher(b, w, time.Second, zap.NewNop())
	relay := transport.NewRelay(d, dappOrigin, time.Second, zap.NewNop())
	t.Cleanup(relay.Close)
	c := relay.Client()
	ctx := context.Background()

	connect := func() <-chan error {
		done := make(chan error, 1)
		go func() { done <- c.Call(ctx, transport.TypeConnect, map[string]any{"title": "Example"}, nil) }()
		return done
	}
	current := func() broker.Request {
		var req broker.Request
		require.Eventually(t, func() bool {
			var ok bool
			req, ok = b.Current(broker.KindConnection)
			return ok
		}, time.Second, time.Millisecond)
		return req
	}

	// First connect surfaces a request, the user approves it
	done := connect()
	req := current()
	assert.Equal(t, dappOrigin, req.Meta.Origin)
	_, err = b.Approve(ctx, req.ID)
	require.NoError(t, err)
	require.NoError(t, <-done)

	site, ok := b.Site(dappOrigin)
	require.True(t, ok)
	assert.False(t, site.Permissions.AutoApprove)

	// Without autoApprove a second connect asks again
	done = connect()
	req = current()
	_, err = b.Approve(ctx, req.ID)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Len(t, b.Sites(), 1)

	// With autoApprove it resolves without a pending request
	require.NoError(t, b.SetAutoApprove(dappOrigin, true))
	require.NoError(t, c.Call(ctx, transport.TypeConnect, map[string]any{"title": "Example"}, nil))
	_, ok = b.Current(broker.KindConnection)
	assert.False(t, ok)
	assert.Empty(t, b.Pending(broker.KindConnection))

	var address string
	require.NoError(t, c.Call(ctx, transport.TypeGetPublicKey, nil, &address))
	expected, err := w.Address()
	require.NoError(t, err)
	assert.Equal(t, expected, address)
}

func TestSendTracksTransferUntilHistoryHasIt(t *testing.T) {
	env := newEnv(t)
	w := env.open(t)
	from, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	chain := env.chain()
	chain.balances[solana.MustPublicKeyFromBase58(from)] = common.LamportsPerSOL

	resp, err := w.Send(context.Background(), model.PayRequest{ToAddress: recipient.String(), Amount: "0.25"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp.ExplorerURL, resp.TxID+"?cluster=devnet"))
	require.Equal(t, 1, chain.sentCount())

	history, err := w.History(context.Background(), model.HistoryRequest{})
	require.NoError(t, err)
	require.Len(t, history.Transactions, 1)
	rec := history.Transactions[0]
	assert.Equal(t, resp.TxID, rec.Signature)
	assert.Equal(t, model.DirectionSend, rec.Direction)
	assert.Equal(t, uint64(250_000_000), rec.Lamports)
	assert.Equal(t, recipient.String(), rec.Counterparty)

	// once the chain reports it, the local record is replaced
	sig := solana.MustSignatureFromBase58(resp.TxID)
	at := time.Now()
	chain.history = []solana.Signature{sig}
	chain.details[sig] = &client.TransactionDetails{
		Signature:    sig,
		BlockTime:    &at,
		Slot:         9,
		AccountKeys:  []solana.PublicKey{solana.MustPublicKeyFromBase58(from), recipient},
		PreBalances:  []uint64{common.LamportsPerSOL, 0},
		PostBalances: []uint64{common.LamportsPerSOL - 250_000_000 - 5000, 250_000_000},
		Fee:          5000,
	}
	history, err = w.History(context.Background(), model.HistoryRequest{})
	require.NoError(t, err)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, uint64(9), history.Transactions[0].Slot)

	receive := model.DirectionReceive
	history, err = w.History(context.Background(), model.HistoryRequest{Direction: &receive})
	require.NoError(t, err)
	assert.Empty(t, history.Transactions)
}

func TestSendValidationAndCooldown(t *testing.T) {
	env := newEnv(t)
	env.opts.PayCooldown = time.Hour
	w := env.open(t)
	from, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	env.chain().balances[solana.MustPublicKeyFromBase58(from)] = common.LamportsPerSOL
	ctx := context.Background()

	_, err = w.Send(ctx, model.PayRequest{ToAddress: recipient.String(), Amount: "0"})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	_, err = w.Send(ctx, model.PayRequest{ToAddress: recipient.String(), Amount: "-1"})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	_, err = w.Send(ctx, model.PayRequest{ToAddress: "nope", Amount: "1"})
	assert.ErrorIs(t, err, model.ErrInvalidAddress)
	_, err = w.Send(ctx, model.PayRequest{ToAddress: recipient.String(), Amount: "2"})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	assert.Zero(t, env.chain().sentCount())

	_, err = w.Send(ctx, model.PayRequest{ToAddress: recipient.String(), Amount: "0.1"})
	require.NoError(t, err)
	_, err = w.Send(ctx, model.PayRequest{ToAddress: recipient.String(), Amount: "0.1"})
	assert.ErrorIs(t, err, model.ErrCooldownActive)
}

func TestGasAccountPaysFees(t *testing.T) {
	env := newEnv(t)
	w := env.open(t)
	from, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)

	gasSecret := solana.NewWallet().PrivateKey
	_, err = w.ImportGasAccount("", gasSecret.String(), []byte("wrong123456"))
	assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	_, err = w.ImportGasAccount(testMnemonic, gasSecret.String(), []byte(password))
	assert.Error(t, err)

	gasAddress, err := w.ImportGasAccount("", gasSecret.String(), []byte(password))
	require.NoError(t, err)
	assert.Equal(t, gasSecret.PublicKey().String(), gasAddress)
	assert.True(t, w.Settings().GasAccountEnabled)

	chain := env.chain()
	chain.balances[solana.MustPublicKeyFromBase58(from)] = 1000
	chain.balances[gasSecret.PublicKey()] = common.LamportsPerSOL

	_, err = w.Send(context.Background(), model.PayRequest{
		ToAddress:     recipient.String(),
		Amount:        "0.000001",
		UseGasAccount: true,
	})
	require.NoError(t, err)
	tx := chain.sent[0]
	assert.True(t, tx.Message.AccountKeys[0].Equals(gasSecret.PublicKey()))
	assert.Len(t, tx.Signatures, 2)

	// the gas account comes back on unlock
	w.Lock()
	_, err = w.Unlock([]byte(password))
	require.NoError(t, err)
	gasBalance, err := w.Balance(context.Background(), account.RoleGas)
	require.NoError(t, err)
	assert.Equal(t, gasAddress, gasBalance.Address)

	// disabled gas falls back to the primary as fee payer
	require.NoError(t, w.SetGasAccountEnabled(false))
	_, err = w.Send(context.Background(), model.PayRequest{
		ToAddress:     recipient.String(),
		Amount:        "0.000001",
		UseGasAccount: true,
	})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	require.NoError(t, w.RemoveGasAccount())
	assert.ErrorIs(t, w.SetGasAccountEnabled(true), model.ErrNoGasAccount)
	status, err := w.Status()
	require.NoError(t, err)
	assert.Empty(t, status.GasAddress)
}

func TestAutoLockAndSessionUnlock(t *testing.T) {
	env := newEnv(t)
	env.opts.AutoLockAfter = 50 * time.Millisecond
	w := env.open(t)
	address, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !w.Unlocked() }, time.Second, 5*time.Millisecond)

	assert.True(t, w.TryAutoUnlock())
	pub, err := w.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, address, pub.String())

	// an explicit lock forgets the session
	w.Lock()
	assert.False(t, w.TryAutoUnlock())
}

func TestActivityAfterTimerFiredKeepsWalletUnlocked(t *testing.T) {
	env := newEnv(t)
	env.opts.AutoLockAfter = 80 * time.Millisecond
	w := env.open(t)
	_, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)

	// an operation holds the lifecycle lock while the timer fires
	w.lifecycle.Lock()
	time.Sleep(120 * time.Millisecond)
	w.touch()
	w.lifecycle.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, w.Unlocked())
	assert.Eventually(t, func() bool { return !w.Unlocked() }, time.Second, 5*time.Millisecond)
}

func TestSetNetwork(t *testing.T) {
	env := newEnv(t)
	w := env.open(t)

	assert.ErrorIs(t, w.SetNetwork("moonnet"), model.ErrUnknownNetwork)

	require.NoError(t, w.SetNetwork(config.NetworkMainnet))
	assert.Contains(t, env.chains, config.NetworkMainnet)
	assert.Equal(t, "https://solscan.io/tx/abc", w.ExplorerURL("abc"))

	restarted := env.open(t)
	assert.Equal(t, config.NetworkMainnet, restarted.Settings().Network)
}

func TestUpdateSettingsTogglesDApps(t *testing.T) {
	w := newEnv(t).open(t)
	off := false

	settings, err := w.UpdateSettings(model.SettingsRequest{DAppsEnabled: &off})
	require.NoError(t, err)
	assert.False(t, settings.DAppsEnabled)
	assert.True(t, settings.AutoLock)

	_, err = w.Broker().Submit(broker.KindConnection, broker.Meta{Origin: dappOrigin}, broker.Payload{})
	assert.ErrorIs(t, err, model.ErrDAppsDisabled)
}

func TestChangePassword(t *testing.T) {
	w := newEnv(t).open(t)
	address, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	_, err = w.ImportGasAccount("", solana.NewWallet().PrivateKey.String(), []byte(password))
	require.NoError(t, err)

	assert.ErrorIs(t, w.ChangePassword([]byte("wrong123456"), []byte("batterystaple")), model.ErrAuthenticationFailed)
	require.NoError(t, w.ChangePassword([]byte(password), []byte("batterystaple")))

	w.Lock()
	_, err = w.Unlock([]byte(password))
	assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	unlocked, err := w.Unlock([]byte("batterystaple"))
	require.NoError(t, err)
	assert.Equal(t, address, unlocked)
	_, err = w.Balance(context.Background(), account.RoleGas)
	assert.NoError(t, err)
}

func TestReceiveQRWhileLocked(t *testing.T) {
	w := newEnv(t).open(t)
	_, err := w.ReceiveQR()
	assert.ErrorIs(t, err, model.ErrWalletNotFound)

	address, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	w.Lock()

	qr, err := w.ReceiveQR()
	require.NoError(t, err)
	assert.Equal(t, address, qr.Address)
	assert.NotEmpty(t, qr.QR)
}

func TestSignTransactionsRefreshesUnsigned(t *testing.T) {
	w := newEnv(t).open(t)
	address, err := w.Import(testMnemonic, []byte(password))
	require.NoError(t, err)
	from := solana.MustPublicKeyFromBase58(address)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, from, recipient).Build()},
		solana.Hash{1},
		solana.TransactionPayer(from),
	)
	require.NoError(t, err)
	foreign, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, recipient, from).Build()},
		solana.Hash{1},
		solana.TransactionPayer(recipient),
	)
	require.NoError(t, err)

	signed, err := w.SignTransactions(context.Background(), []*solana.Transaction{tx, foreign})
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrNotSigner)
	require.Len(t, signed, 1)
	assert.Equal(t, solana.Hash{42}, signed[0].Message.RecentBlockhash)

	content, err := signed[0].Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, crypto.Verify(from, content, signed[0].Signatures[0]))
}
