package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fakeBalances struct {
	mu       sync.Mutex
	lamports map[solana.PublicKey]uint64
	err      error
}

func (f *fakeBalances) GetBalance(_ context.Context, pub solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.lamports[pub], nil
}

func newGasKeypair(t *testing.T) *crypto.Keypair {
	t.Helper()
	mnemonic, err := crypto.GenerateMnemonic()
	require.NoError(t, err)
	kp, err := crypto.DeriveKeypair(mnemonic)
	require.NoError(t, err)
	return kp
}

func transferTx(t *testing.T, payer, from, to solana.PublicKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, to).Build()},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func TestLockedStoreRefusesEverything(t *testing.T) {
	s := NewStore(&fakeBalances{})

	assert.False(t, s.Unlocked())
	_, err := s.PublicAddress(RolePrimary)
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
	_, err = s.SignBytes(RolePrimary, []byte("msg"))
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
	_, err = s.SignTransaction(RoleGas, &solana.Transaction{})
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
	_, err = s.Balance(context.Background(), RolePrimary)
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
}

func TestUnlockSignLock(t *testing.T) {
	s := NewStore(&fakeBalances{})

	pub, err := s.Unlock(testMnemonic)
	require.NoError(t, err)
	assert.True(t, s.Unlocked())

	addr, err := s.PublicAddress(RolePrimary)
	require.NoError(t, err)
	assert.Equal(t, pub, addr)

	msg := []byte("sign me")
	sig, err := s.SignBytes(RolePrimary, msg)
	require.NoError(t, err)
	assert.True(t, crypto.Verify(pub, msg, sig))

	s.Lock()
	assert.False(t, s.Unlocked())
	_, err = s.SignBytes(RolePrimary, msg)
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
}

func TestUnlockInvalidMnemonic(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Unlock("abandon")
	assert.ErrorIs(t, err, model.ErrInvalidMnemonic)
	assert.False(t, s.Unlocked())
}

func TestGasAccountSlot(t *testing.T) {
	s := NewStore(&fakeBalances{})
	_, err := s.Unlock(testMnemonic)
	require.NoError(t, err)

	gas := newGasKeypair(t)
	s.SetGasAccount(gas)
	assert.True(t, s.Has(RoleGas))

	gasAddr, err := s.PublicAddress(RoleGas)
	require.NoError(t, err)
	assert.Equal(t, gas.PublicKey(), gasAddr)

	s.ClearGasAccount()
	assert.False(t, s.Has(RoleGas))
	assert.True(t, gas.Zeroed())
	assert.True(t, s.Unlocked())
}

func TestReplacingKeypairWipesOld(t *testing.T) {
	s := NewStore(nil)
	first := newGasKeypair(t)
	second := newGasKeypair(t)

	s.SetGasAccount(first)
	s.SetGasAccount(second)
	assert.True(t, first.Zeroed())
	assert.False(t, second.Zeroed())
}

func TestSignTransactionSingleSigner(t *testing.T) {
	s := NewStore(nil)
	pub, err := s.Unlock(testMnemonic)
	require.NoError(t, err)

	tx := transferTx(t, pub, pub, solana.PublicKey{9})
	signed, err := s.SignTransaction(RolePrimary, tx)
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 1)

	content, err := signed.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, crypto.Verify(pub, content, signed.Signatures[0]))
}

func TestSignTransactionWithGasFeePayer(t *testing.T) {
	s := NewStore(nil)
	pub, err := s.Unlock(testMnemonic)
	require.NoError(t, err)
	gas := newGasKeypair(t)
	s.SetGasAccount(gas)

	tx := transferTx(t, gas.PublicKey(), pub, solana.PublicKey{9})
	require.EqualValues(t, 2, tx.Message.Header.NumRequiredSignatures)

	_, err = s.SignTransaction(RoleGas, tx)
	require.NoError(t, err)
	_, err = s.SignTransaction(RolePrimary, tx)
	require.NoError(t, err)

	content, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 2)
	assert.True(t, crypto.Verify(gas.PublicKey(), content, tx.Signatures[0]))
	assert.True(t, crypto.Verify(pub, content, tx.Signatures[1]))
}

func TestSignTransactionNotASigner(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Unlock(testMnemonic)
	require.NoError(t, err)

	stranger := newGasKeypair(t).PublicKey()
	tx := transferTx(t, stranger, stranger, solana.PublicKey{9})
	_, err = s.SignTransaction(RolePrimary, tx)
	assert.ErrorIs(t, err, ErrNotSigner)
	assert.Empty(t, tx.Signatures)
}

func TestBalanceCaches(t *testing.T) {
	balances := &fakeBalances{lamports: map[solana.PublicKey]uint64{}}
	s := NewStore(balances)
	pub, err := s.Unlock(testMnemonic)
	require.NoError(t, err)
	balances.lamports[pub] = 42

	lamports, err := s.Balance(context.Background(), RolePrimary)
	require.NoError(t, err)
	assert.EqualValues(t, 42, lamports)

	cached, at, err := s.CachedBalance(RolePrimary)
	require.NoError(t, err)
	assert.EqualValues(t, 42, cached)
	assert.False(t, at.IsZero())

	balances.err = errors.New("rpc down")
	_, err = s.Balance(context.Background(), RolePrimary)
	assert.Error(t, err)

	s.SetBalanceSource(balances)
	cached, _, err = s.CachedBalance(RolePrimary)
	require.NoError(t, err)
	assert.Zero(t, cached)
}

func TestLockRacesWithSigners(t *testing.T) {
	s := NewStore(nil)
	pub, err := s.Unlock(testMnemonic)
	require.NoError(t, err)

	msg := []byte("race")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := s.SignBytes(RolePrimary, msg)
			if err != nil {
				assert.ErrorIs(t, err, model.ErrNotUnlocked)
				return
			}
			assert.True(t, crypto.Verify(pub, msg, sig))
		}()
	}
	s.Lock()
	wg.Wait()

	_, err = s.SignBytes(RolePrimary, msg)
	assert.ErrorIs(t, err, model.ErrNotUnlocked)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, role)

	role, err = ParseRole("gas")
	require.NoError(t, err)
	assert.Equal(t, RoleGas, role)

	_, err = ParseRole("cold")
	assert.Error(t, err)
}
