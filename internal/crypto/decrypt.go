package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/model"
)

// ErrCorruptedBlob means the blob itself is unreadable, independent of the password
var ErrCorruptedBlob = errors.New("corrupted wallet data")

// Decrypt opens blob with password. A wrong password yields ErrAuthenticationFailed.
// Caller must zero the returned slice after use.
func (v *Vault) Decrypt(blob *model.EncryptedBlob, password []byte) ([]byte, error) {
	if blob == nil {
		return nil, model.ErrWalletNotFound
	}
	if blob.Version != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptedBlob, blob.Version)
	}

	// Decode salt, nonce and ciphertext
	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode salt: %v", ErrCorruptedBlob, err)
	}

	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil || len(nonce) != nonceLen {
		return nil, fmt.Errorf("%w: failed to decode nonce", ErrCorruptedBlob)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode ciphertext: %v", ErrCorruptedBlob, err)
	}

	aesGCM, err := newGCM(password, salt, blob.KDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBlob, err)
	}

	// Decrypt; GCM authenticates so a wrong password never yields garbage plaintext
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, additionalData(blob))
	if err != nil {
		return nil, model.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// DecryptMnemonic opens a mnemonic blob. A plaintext that decrypts but does not
// validate is treated as a wrong password, not as corruption.
func (v *Vault) DecryptMnemonic(blob *model.EncryptedBlob, password []byte) (string, error) {
	if blob != nil && blob.Kind != model.BlobKindMnemonic {
		return "", fmt.Errorf("%w: blob holds %s, not a mnemonic", ErrCorruptedBlob, blob.Kind)
	}

	plaintext, err := v.Decrypt(blob, password)
	if err != nil {
		return "", err
	}
	defer clear(plaintext)

	mnemonic := string(plaintext)
	if !ValidateMnemonic(mnemonic) {
		return "", model.ErrAuthenticationFailed
	}
	return mnemonic, nil
}

// DecryptKeypair opens any blob kind and derives its keypair, checking it
// matches the address recorded next to the ciphertext.
func (v *Vault) DecryptKeypair(blob *model.EncryptedBlob, password []byte) (*Keypair, error) {
	plaintext, err := v.Decrypt(blob, password)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)

	var kp *Keypair
	switch blob.Kind {
	case model.BlobKindMnemonic:
		if !ValidateMnemonic(string(plaintext)) {
			return nil, model.ErrAuthenticationFailed
		}
		kp, err = DeriveKeypair(string(plaintext))
	case model.BlobKindSecretKey:
		kp, err = DeriveKeypairFromRawSecret(string(plaintext))
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrCorruptedBlob, blob.Kind)
	}
	if err != nil {
		return nil, model.ErrAuthenticationFailed
	}

	if kp.PublicKey().String() != blob.Address {
		kp.Zero()
		return nil, fmt.Errorf("%w: key does not match stored address", ErrCorruptedBlob)
	}
	return kp, nil
}

// Reencrypt opens blob with oldPassword and seals the same secret under newPassword
// with this vault's parameters.
func (v *Vault) Reencrypt(blob *model.EncryptedBlob, oldPassword, newPassword []byte) (*model.EncryptedBlob, error) {
	plaintext, err := v.Decrypt(blob, oldPassword)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)

	if blob.Kind == model.BlobKindMnemonic && !ValidateMnemonic(string(plaintext)) {
		return nil, model.ErrAuthenticationFailed
	}
	return v.Encrypt(blob.Kind, plaintext, blob.Address, newPassword)
}
