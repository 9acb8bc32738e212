package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/anyproto/go-slip10"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPath is the standard Solana account path.
// Every segment is hardened because ed25519 SLIP-0010 only supports hardened children.
const DerivationPath = "m/44'/501'/0'/0'"

// DeriveKeypair derives the wallet keypair from a BIP-39 mnemonic:
// PBKDF2 seed with empty passphrase, then SLIP-0010 ed25519 along DerivationPath.
func DeriveKeypair(mnemonic string) (*Keypair, error) {
	normalized, err := checkMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(normalized, "")
	defer clear(seed)

	node, err := slip10.DeriveForPath(DerivationPath, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s: %w", DerivationPath, err)
	}
	key := node.RawSeed()
	defer clear(key)

	return keypairFromSeed(key), nil
}

// DeriveKeypairFromRawSecret decodes a base58 secret key as exported by common Solana wallets:
// either the 64-byte seed||public form or a bare 32-byte seed.
func DeriveKeypairFromRawSecret(base58Secret string) (*Keypair, error) {
	raw, err := base58.Decode(base58Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: not base58", model.ErrInvalidKeyFormat)
	}
	defer clear(raw)

	switch len(raw) {
	case ed25519.SeedSize:
		return keypairFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		kp := keypairFromSeed(raw[:ed25519.SeedSize])
		pub := kp.PublicKey()
		if !hmac.Equal(pub[:], raw[ed25519.SeedSize:]) {
			kp.Zero()
			return nil, fmt.Errorf("%w: public half does not match secret", model.ErrInvalidKeyFormat)
		}
		return kp, nil
	default:
		return nil, fmt.Errorf("%w: expected 32 or 64 bytes, got %d", model.ErrInvalidKeyFormat, len(raw))
	}
}

// keypairFromSeed expands a 32-byte ed25519 seed; seed is not retained.
func keypairFromSeed(seed []byte) *Keypair {
	priv := ed25519.NewKeyFromSeed(seed)
	var pub solana.PublicKey
	copy(pub[:], priv[ed25519.SeedSize:])
	return &Keypair{public: pub, secret: solana.PrivateKey(priv)}
}
