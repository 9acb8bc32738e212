package model

// PasswordRequest represents request for POST /wallet/create and /wallet/unlock
type PasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest represents request for POST /wallet/password
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ImportRequest represents request for POST /wallet/import
type ImportRequest struct {
	Mnemonic string `json:"mnemonic" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GasImportRequest represents request for POST /wallet/gas/import.
// Exactly one of Mnemonic or SecretKey must be set.
type GasImportRequest struct {
	Mnemonic  string `json:"mnemonic,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	Password  string `json:"password" binding:"required"`
}

// CreateResponse represents response for POST /wallet/create.
// Mnemonic is shown once so the user can back it up.
type CreateResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Address  string `json:"address,omitempty"`
	Mnemonic string `json:"mnemonic,omitempty"`
}

// GenerateResponse represents a plain success response
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Address string `json:"address,omitempty"`
}
