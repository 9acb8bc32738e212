package model

// BlobKind identifies what an EncryptedBlob holds once decrypted.
type BlobKind string

const (
	BlobKindMnemonic  BlobKind = "mnemonic"
	BlobKindSecretKey BlobKind = "secretKey" // base58 encoded raw secret key
)

// KDFParams are the scrypt parameters a blob was sealed with
type KDFParams struct {
	Name string `json:"name"` // always "scrypt"
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
}

// EncryptedBlob is the persisted representation of wallet secret material.
// Address is stored in the clear so the wallet can be displayed while locked.
type EncryptedBlob struct {
	Version    int       `json:"version"`
	Kind       BlobKind  `json:"kind"`
	Address    string    `json:"address"`
	KDF        KDFParams `json:"kdf"`
	Salt       string    `json:"salt"`
	Nonce      string    `json:"nonce"`
	CipherText string    `json:"cipherText"`
	CreatedAt  string    `json:"createdAt"`
}

// Settings are the persisted, non-secret wallet preferences.
type Settings struct {
	Network           string `json:"network"`
	GasAccountEnabled bool   `json:"gasAccountEnabled"`
	DAppsEnabled      bool   `json:"dappsEnabled"`
	AutoLock          bool   `json:"autoLock"`
}

// DefaultSettings mirrors a freshly installed wallet.
func DefaultSettings(network string) Settings {
	return Settings{
		Network:      network,
		DAppsEnabled: true,
		AutoLock:     true,
	}
}

// WalletStatus represents response for GET /wallet/status
type WalletStatus struct {
	Initialized       bool   `json:"initialized"`
	Unlocked          bool   `json:"unlocked"`
	Address           string `json:"address,omitempty"`
	GasAddress        string `json:"gasAddress,omitempty"`
	GasAccountEnabled bool   `json:"gasAccountEnabled"`
	Network           string `json:"network"`
	DAppsEnabled      bool   `json:"dappsEnabled"`
	AutoLock          bool   `json:"autoLock"`
}
