package solana

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/client"
	"github.com/AlexZinkM/oasis-wallet/internal/common"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var recipient = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

type fakeChain struct {
	mu         sync.Mutex
	balances   map[solana.PublicKey]uint64
	blockhashN int
	sendErrs   []error
	sent       []*solana.Transaction
	status     *client.SignatureStatus
	signatures []solana.Signature
	details    map[solana.Signature]*client.TransactionDetails
	calls      int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: make(map[solana.PublicKey]uint64),
		status:   &client.SignatureStatus{Commitment: client.CommitmentConfirmed},
		details:  make(map[solana.Signature]*client.TransactionDetails),
	}
}

func (f *fakeChain) GetBalance(_ context.Context, pub solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.balances[pub], nil
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.blockhashN++
	return solana.Hash{byte(f.blockhashN)}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, tx)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	return tx.Signatures[0], nil
}

func (f *fakeChain) GetSignatureStatus(context.Context, solana.Signature) (*client.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, nil
}

func (f *fakeChain) GetSignaturesForAddress(context.Context, solana.PublicKey, int) ([]solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.signatures, nil
}

func (f *fakeChain) GetTransaction(_ context.Context, sig solana.Signature) (*client.TransactionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.details[sig]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (f *fakeChain) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	chain    *fakeChain
	accounts *account.Store
	engine   *Engine
	primary  solana.PublicKey
	gas      solana.PublicKey
}

func newFixture(t *testing.T, withGas bool) *fixture {
	t.Helper()
	chain := newFakeChain()
	accounts := account.NewStore(chain)
	primary, err := accounts.Unlock(testMnemonic)
	require.NoError(t, err)

	f := &fixture{chain: chain, accounts: accounts, primary: primary}
	if withGas {
		mnemonic, err := crypto.MnemonicFromEntropy(make([]byte, 32))
		require.NoError(t, err)
		kp, err := crypto.DeriveKeypair(mnemonic)
		require.NoError(t, err)
		accounts.SetGasAccount(kp)
		f.gas = kp.PublicKey()
	}
	f.engine = NewEngine(chain, accounts, Options{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}, zap.NewNop())
	return f
}

func TestBuildTransferRejectsNonPositiveAmountWithoutNetwork(t *testing.T) {
	f := newFixture(t, false)

	for _, lamports := range []int64{0, -1, -common.LamportsPerSOL} {
		_, err := BuildTransfer(f.primary.String(), recipient.String(), lamports)
		assert.ErrorIs(t, err, model.ErrInvalidAmount)
	}
	assert.Zero(t, f.chain.callCount())
}

func TestBuildTransferRejectsInvalidAddress(t *testing.T) {
	_, err := BuildTransfer(recipient.String(), "not-an-address", 10)
	assert.ErrorIs(t, err, model.ErrInvalidAddress)

	_, err = BuildTransfer("0OIl", recipient.String(), 10)
	assert.ErrorIs(t, err, model.ErrInvalidAddress)

	tr, err := BuildTransfer(recipient.String(), recipient.String(), 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tr.Lamports)
}

func TestChooseFeePayer(t *testing.T) {
	assert.Equal(t, account.RolePrimary, ChooseFeePayer(false, false))
	assert.Equal(t, account.RolePrimary, ChooseFeePayer(false, true))
	assert.Equal(t, account.RolePrimary, ChooseFeePayer(true, false))
	assert.Equal(t, account.RoleGas, ChooseFeePayer(true, true))
}

func TestSignAndSubmitSingleSigner(t *testing.T) {
	f := newFixture(t, false)
	f.chain.balances[f.primary] = common.LamportsPerSOL

	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	sig, err := f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	require.NoError(t, err)

	require.Len(t, f.chain.sent, 1)
	tx := f.chain.sent[0]
	assert.Equal(t, sig, tx.Signatures[0])
	assert.Equal(t, uint8(1), tx.Message.Header.NumRequiredSignatures)
	assert.True(t, tx.Message.AccountKeys[0].Equals(f.primary))

	content, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, crypto.Verify(f.primary, content, sig))
}

func TestSignAndSubmitWithGasFeePayer(t *testing.T) {
	f := newFixture(t, true)
	f.chain.balances[f.primary] = 1000
	f.chain.balances[f.gas] = 2 * MinFeeLamports

	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	_, err = f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RoleGas)
	require.NoError(t, err)

	tx := f.chain.sent[0]
	require.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures)
	assert.True(t, tx.Message.AccountKeys[0].Equals(f.gas))
	assert.True(t, tx.Message.AccountKeys[1].Equals(f.primary))

	content, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, crypto.Verify(f.gas, content, tx.Signatures[0]))
	assert.True(t, crypto.Verify(f.primary, content, tx.Signatures[1]))
}

func TestSignAndSubmitPreflightBalances(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	// amount plus fee exceeds the balance
	f.chain.balances[f.primary] = 1000 + MinFeeLamports - 1
	_, err = f.engine.SignAndSubmit(ctx, tr, account.RolePrimary, account.RolePrimary)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	// gas pays, primary only needs the amount, but gas is short
	f.chain.balances[f.gas] = MinFeeLamports
	_, err = f.engine.SignAndSubmit(ctx, tr, account.RolePrimary, account.RoleGas)
	assert.ErrorIs(t, err, model.ErrInsufficientFeeBalance)

	f.chain.balances[f.primary] = 999
	_, err = f.engine.SignAndSubmit(ctx, tr, account.RolePrimary, account.RoleGas)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	assert.Empty(t, f.chain.sent)
}

func TestSignAndSubmitRetriesStaleBlockhashOnce(t *testing.T) {
	f := newFixture(t, false)
	f.chain.balances[f.primary] = common.LamportsPerSOL
	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	f.chain.sendErrs = []error{client.ErrBlockhashNotFound, nil}
	_, err = f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	require.NoError(t, err)
	require.Len(t, f.chain.sent, 2)
	assert.NotEqual(t, f.chain.sent[0].Message.RecentBlockhash, f.chain.sent[1].Message.RecentBlockhash)

	f.chain.sent = nil
	f.chain.sendErrs = []error{client.ErrBlockhashNotFound, client.ErrBlockhashNotFound, nil}
	_, err = f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	assert.ErrorIs(t, err, model.ErrBlockhashExpired)
	assert.True(t, model.Retryable(err))
	assert.Len(t, f.chain.sent, 2)
}

func TestSignAndSubmitRejection(t *testing.T) {
	f := newFixture(t, false)
	f.chain.balances[f.primary] = common.LamportsPerSOL
	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	f.chain.sendErrs = []error{client.ErrRejected}
	_, err = f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	assert.ErrorIs(t, err, model.ErrSubmissionFailed)
	assert.False(t, model.Retryable(err))
}

func TestSignAndSubmitConfirmationTimeout(t *testing.T) {
	f := newFixture(t, false)
	f.chain.balances[f.primary] = common.LamportsPerSOL
	f.chain.status = &client.SignatureStatus{Commitment: client.CommitmentProcessed}
	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	sig, err := f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	assert.ErrorIs(t, err, model.ErrConfirmationTimeout)
	assert.NotEqual(t, solana.Signature{}, sig)
}

func TestSignAndSubmitFailedOnChain(t *testing.T) {
	f := newFixture(t, false)
	f.chain.balances[f.primary] = common.LamportsPerSOL
	f.chain.status = &client.SignatureStatus{Commitment: client.CommitmentConfirmed, Err: "InstructionError"}
	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	_, err = f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	assert.ErrorIs(t, err, model.ErrSubmissionFailed)
}

func TestSignAndSubmitAfterLock(t *testing.T) {
	f := newFixture(t, false)
	tr, err := BuildTransfer(f.primary.String(), recipient.String(), 1000)
	require.NoError(t, err)

	f.accounts.Lock()
	_, err = f.engine.SignAndSubmit(context.Background(), tr, account.RolePrimary, account.RolePrimary)
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
}

func TestRefreshBlockhashAndSubmitSigned(t *testing.T) {
	f := newFixture(t, false)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, f.primary, recipient).Build()},
		solana.Hash{},
		solana.TransactionPayer(f.primary),
	)
	require.NoError(t, err)
	tx.Signatures = []solana.Signature{{9}}

	require.NoError(t, f.engine.RefreshBlockhash(context.Background(), tx))
	assert.NotEqual(t, solana.Hash{}, tx.Message.RecentBlockhash)
	assert.Empty(t, tx.Signatures)

	_, err = f.accounts.SignTransaction(account.RolePrimary, tx)
	require.NoError(t, err)

	f.chain.sendErrs = []error{client.ErrBlockhashNotFound}
	_, err = f.engine.SubmitSigned(context.Background(), tx)
	assert.ErrorIs(t, err, model.ErrBlockhashExpired)

	sig, err := f.engine.SubmitSigned(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
}
