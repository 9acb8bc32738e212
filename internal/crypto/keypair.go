package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"sync"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
)

// Keypair is an ed25519 signing key owned by the trusted side of the wallet.
// It never exposes its secret: String, GoString and MarshalJSON render the public key only.
type Keypair struct {
	mu     sync.RWMutex
	public solana.PublicKey
	secret solana.PrivateKey
}

// PublicKey returns the account address
func (k *Keypair) PublicKey() solana.PublicKey {
	return k.public
}

// Sign signs msg; a zeroed keypair returns ErrNotUnlocked.
func (k *Keypair) Sign(msg []byte) (solana.Signature, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var sig solana.Signature
	if len(k.secret) != ed25519.PrivateKeySize {
		return sig, model.ErrNotUnlocked
	}
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(k.secret), msg))
	return sig, nil
}

// Zero wipes the secret key. The keypair cannot sign afterwards.
func (k *Keypair) Zero() {
	k.mu.Lock()
	defer k.mu.Unlock()

	clear(k.secret)
	k.secret = nil
}

// Zeroed reports whether the secret was wiped
func (k *Keypair) Zeroed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.secret == nil
}

func (k *Keypair) String() string {
	return k.public.String()
}

func (k *Keypair) GoString() string {
	return "Keypair(" + k.public.String() + ")"
}

func (k *Keypair) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.public.String())
}

// Verify checks an ed25519 signature of msg by pub
func Verify(pub solana.PublicKey, msg []byte, sig solana.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}
