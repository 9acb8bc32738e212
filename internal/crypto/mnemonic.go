package crypto

import (
	"fmt"
	"strings"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/tyler-smith/go-bip39"
)

const (
	// EntropyBits is the entropy size of a generated wallet (12 words)
	EntropyBits = 128
	EntropyLen  = EntropyBits / 8
)

// GenerateMnemonic draws 128 bits from crypto/rand and encodes them as a 12-word BIP-39 phrase.
// An error here means the system RNG is unavailable and is not recoverable.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer clear(entropy)

	return MnemonicFromEntropy(entropy)
}

// MnemonicFromEntropy encodes 16 or 32 bytes of entropy as a 12 or 24 word phrase.
func MnemonicFromEntropy(entropy []byte) (string, error) {
	if len(entropy) != EntropyLen && len(entropy) != 2*EntropyLen {
		return "", fmt.Errorf("entropy must be %d or %d bytes, got %d", EntropyLen, 2*EntropyLen, len(entropy))
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases the phrase and collapses whitespace between words.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic reports whether mnemonic has 12 or 24 words from the English
// wordlist and a matching checksum.
func ValidateMnemonic(mnemonic string) bool {
	words := strings.Fields(mnemonic)
	if len(words) != 12 && len(words) != 24 {
		return false
	}
	return bip39.IsMnemonicValid(strings.Join(words, " "))
}

// checkMnemonic returns the normalized phrase or ErrInvalidMnemonic
func checkMnemonic(mnemonic string) (string, error) {
	normalized := NormalizeMnemonic(mnemonic)
	if !ValidateMnemonic(normalized) {
		return "", model.ErrInvalidMnemonic
	}
	return normalized, nil
}
