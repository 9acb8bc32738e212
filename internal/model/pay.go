package model

// PayRequest represents request for POST /wallet/send
type PayRequest struct {
	ToAddress     string `json:"toAddress" binding:"required"`
	Amount        string `json:"amount" binding:"required"` // SOL, decimal string
	UseGasAccount bool   `json:"useGasAccount"`
}

// PayResponse represents response for POST /wallet/send
type PayResponse struct {
	TxID        string `json:"txId"`
	ExplorerURL string `json:"explorerUrl"`
}
