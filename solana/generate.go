package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// GenerateQRCode generates a QR code of address as base64 PNG
func GenerateQRCode(address string) (string, error) {
	if !IsValidAddress(address) {
		return "", fmt.Errorf("%q: %w", address, model.ErrInvalidAddress)
	}

	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	// Get PNG image
	png, err := qr.PNG(qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	// Encode to base64
	return base64.StdEncoding.EncodeToString(png), nil
}
