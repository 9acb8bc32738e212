package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"golang.org/x/crypto/scrypt"
)

const (
	blobVersion  = 1
	kdfName      = "scrypt"
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// Params are the scrypt cost parameters used when sealing new blobs.
// Decryption always uses the parameters recorded in the blob.
type Params struct {
	N int
	R int
	P int
}

// DefaultParams
//
// N=2^18 (~256MB RAM, 0.5-2s) - optimal balance:
//   - Maximum security while remaining compatible with mobile devices
//   - Brute-force attacks remain extremely expensive
//
// Note: N=2^20 (~1GB) fails on mobile due to per-app memory limits (~256-512MB typically)
var DefaultParams = Params{N: 1 << 18, R: 8, P: 1}

// Vault seals and opens wallet secret material with a password-derived key.
type Vault struct {
	params Params
	rand   io.Reader
	now    func() time.Time
}

// NewVault returns a Vault sealing with params
func NewVault(params Params) *Vault {
	return &Vault{params: params, rand: rand.Reader, now: time.Now}
}

// EncryptMnemonic validates mnemonic, derives its address and seals it.
// password must be []byte for security (caller should zero it after use)
func (v *Vault) EncryptMnemonic(mnemonic string, password []byte) (*model.EncryptedBlob, error) {
	normalized, err := checkMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	kp, err := DeriveKeypair(normalized)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()

	plaintext := []byte(normalized)
	defer clear(plaintext)

	return v.Encrypt(model.BlobKindMnemonic, plaintext, kp.PublicKey().String(), password)
}

// EncryptSecretKey seals a base58 raw secret key after checking it decodes.
func (v *Vault) EncryptSecretKey(base58Secret string, password []byte) (*model.EncryptedBlob, error) {
	kp, err := DeriveKeypairFromRawSecret(base58Secret)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()

	plaintext := []byte(base58Secret)
	defer clear(plaintext)

	return v.Encrypt(model.BlobKindSecretKey, plaintext, kp.PublicKey().String(), password)
}

// Encrypt seals plaintext with AES-256-GCM under a scrypt key derived from password.
// Kind and address are bound as additional data, so editing them breaks authentication.
func (v *Vault) Encrypt(kind model.BlobKind, plaintext []byte, address string, password []byte) (*model.EncryptedBlob, error) {
	if len(password) == 0 {
		return nil, errors.New("password cannot be empty")
	}

	// Generate salt and nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(v.rand, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob := &model.EncryptedBlob{
		Version: blobVersion,
		Kind:    kind,
		Address: address,
		KDF: model.KDFParams{
			Name: kdfName,
			N:    v.params.N,
			R:    v.params.R,
			P:    v.params.P,
		},
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Nonce:     base64.StdEncoding.EncodeToString(nonce),
		CreatedAt: v.now().UTC().Format(time.RFC3339),
	}

	aesGCM, err := newGCM(password, salt, blob.KDF)
	if err != nil {
		return nil, err
	}

	// Encrypt
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, additionalData(blob))
	blob.CipherText = base64.StdEncoding.EncodeToString(ciphertext)

	return blob, nil
}

// newGCM derives the key from password and builds the AEAD
func newGCM(password, salt []byte, kdf model.KDFParams) (cipher.AEAD, error) {
	if kdf.Name != kdfName {
		return nil, fmt.Errorf("unsupported kdf %q", kdf.Name)
	}

	// Derive key from password
	key, err := scrypt.Key(password, salt, kdf.N, kdf.R, kdf.P, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	// Create AES cipher
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// Create GCM
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

func additionalData(blob *model.EncryptedBlob) []byte {
	return []byte(fmt.Sprintf("oasis-wallet/v%d/%s/%s", blob.Version, blob.Kind, blob.Address))
}
