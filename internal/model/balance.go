package model

// BalanceResponse represents response for GET /wallet/balance
type BalanceResponse struct {
	Role     string `json:"role"`
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
}

// ReceiveResponse represents response for GET /wallet/receive
type ReceiveResponse struct {
	Address string `json:"address"`
	QR      string `json:"QR"` // base64 PNG
}
