package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AlexZinkM/oasis-wallet/internal/account"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/wallet"
)

// WalletHandler serves the wallet endpoints of the local UI
type WalletHandler struct {
	wallet *wallet.Wallet
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(w *wallet.Wallet) *WalletHandler {
	return &WalletHandler{wallet: w}
}

// Create handles POST /wallet/create
// @Summary      Create new wallet
// @Description  Generates a new mnemonic, stores it encrypted with the password and unlocks the wallet. The mnemonic is returned only once.
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.PasswordRequest  true  "Wallet password"
// @Success      200      {object}  model.CreateResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /wallet/create [post]
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	password := []byte(req.Password)
	defer clear(password) // Always clear password from memory

	address, mnemonic, err := h.wallet.Create(password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.CreateResponse{
		Success:  true,
		Message:  "Wallet created successfully. Write down the mnemonic, it will not be shown again",
		Address:  address,
		Mnemonic: mnemonic,
	})
}

// Import handles POST /wallet/import
// @Summary      Import wallet
// @Description  Restores a wallet from a 12 or 24 word mnemonic and unlocks it
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.ImportRequest  true  "Mnemonic and password"
// @Success      200      {object}  model.GenerateResponse
// @Failure      400      {object}  model.ErrorResponse
// @Router       /wallet/import [post]
func (h *WalletHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.ImportRequest
	if !decode(w, r, &req) {
		return
	}
	password := []byte(req.Password)
	defer clear(password)

	address, err := h.wallet.Import(req.Mnemonic, password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.GenerateResponse{
		Success: true,
		Message: "Wallet imported successfully",
		Address: address,
	})
}

// Unlock handles POST /wallet/unlock
// @Summary      Unlock wallet
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.PasswordRequest  true  "Wallet password"
// @Success      200      {object}  model.GenerateResponse
// @Failure      401      {object}  model.ErrorResponse
// @Router       /wallet/unlock [post]
func (h *WalletHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	password := []byte(req.Password)
	defer clear(password)

	address, err := h.wallet.Unlock(password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.GenerateResponse{
		Success: true,
		Message: "Wallet unlocked",
		Address: address,
	})
}

// Lock handles POST /wallet/lock
// @Summary      Lock wallet
// @Description  Wipes the keys from memory and forgets the session
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.WalletStatus
// @Router       /wallet/lock [post]
func (h *WalletHandler) Lock(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	h.wallet.Lock()
	h.writeStatus(w)
}

// Status handles GET /wallet/status
// @Summary      Get wallet status
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.WalletStatus
// @Router       /wallet/status [get]
func (h *WalletHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	h.wallet.TryAutoUnlock()
	h.writeStatus(w)
}

func (h *WalletHandler) writeStatus(w http.ResponseWriter) {
	status, err := h.wallet.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ChangePassword handles POST /wallet/password
// @Summary      Change wallet password
// @Description  Re-encrypts the primary and gas accounts under the new password
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.ChangePasswordRequest  true  "Old and new password"
// @Success      200      {object}  model.GenerateResponse
// @Failure      401      {object}  model.ErrorResponse
// @Router       /wallet/password [post]
func (h *WalletHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	oldPassword, newPassword := []byte(req.OldPassword), []byte(req.NewPassword)
	defer clear(oldPassword)
	defer clear(newPassword)

	if err := h.wallet.ChangePassword(oldPassword, newPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.GenerateResponse{Success: true, Message: "Password changed"})
}

// GetBalance handles GET /wallet/balance
// @Summary      Get account balance
// @Tags         wallet
// @Produce      json
// @Param        role  query     string  false  "primary (default) or gas"
// @Success      200   {object}  model.BalanceResponse
// @Failure      423   {object}  model.ErrorResponse
// @Router       /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	role := account.RolePrimary
	if s := r.URL.Query().Get("role"); s != "" {
		parsed, err := account.ParseRole(s)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		role = parsed
	}

	h.wallet.TryAutoUnlock()
	balance, err := h.wallet.Balance(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Receive handles GET /wallet/receive
// @Summary      Get receive address
// @Description  Returns the primary address with a base64 PNG QR code. Works while locked.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.ReceiveResponse
// @Router       /wallet/receive [get]
func (h *WalletHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	resp, err := h.wallet.ReceiveQR()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /wallet/send
// @Summary      Send SOL
// @Description  Sends SOL to the specified address. 202 means submitted but not confirmed yet.
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.PayRequest  true  "Payment data"
// @Success      200      {object}  model.PayResponse
// @Success      202      {object}  model.PayResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      429      {object}  model.ErrorResponse
// @Router       /wallet/send [post]
func (h *WalletHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.PayRequest
	if !decode(w, r, &req) {
		return
	}

	h.wallet.TryAutoUnlock()
	resp, err := h.wallet.Send(r.Context(), req)
	switch {
	case errors.Is(err, model.ErrConfirmationTimeout) && resp != nil:
		writeJSON(w, http.StatusAccepted, resp)
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// TransactionHistory handles GET /wallet/transactions
// @Summary      Get wallet transactions
// @Description  Lists recent SOL transfers of the primary account, newest first
// @Tags         wallet
// @Produce      json
// @Param        type   query     string  false  "send or receive"
// @Param        limit  query     int     false  "Number of transactions (1-100)"
// @Success      200    {object}  model.HistoryResponse
// @Router       /wallet/transactions [get]
func (h *WalletHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	var req model.HistoryRequest
	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		direction := model.Direction(typeStr)
		req.Direction = &direction
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "limit must be a number", Code: "BAD_REQUEST"})
			return
		}
		req.Limit = limit
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	h.wallet.TryAutoUnlock()
	history, err := h.wallet.History(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ImportGas handles POST /wallet/gas/import
// @Summary      Import gas account
// @Description  Imports a fee payer from a mnemonic or a base58 secret key, encrypted with the wallet password
// @Tags         gas
// @Accept       json
// @Produce      json
// @Param        request  body      model.GasImportRequest  true  "Gas account secret and wallet password"
// @Success      200      {object}  model.GenerateResponse
// @Router       /wallet/gas/import [post]
func (h *WalletHandler) ImportGas(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.GasImportRequest
	if !decode(w, r, &req) {
		return
	}
	if (req.Mnemonic == "") == (req.SecretKey == "") {
		writeBadRequest(w, errors.New("provide either mnemonic or secretKey"))
		return
	}
	password := []byte(req.Password)
	defer clear(password)

	address, err := h.wallet.ImportGasAccount(req.Mnemonic, req.SecretKey, password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.GenerateResponse{
		Success: true,
		Message: "Gas account imported",
		Address: address,
	})
}

// ToggleGas handles POST /wallet/gas/toggle
// @Summary      Enable or disable the gas account
// @Tags         gas
// @Accept       json
// @Produce      json
// @Param        request  body      model.ToggleRequest  true  "Enabled flag"
// @Success      200      {object}  model.Settings
// @Router       /wallet/gas/toggle [post]
func (h *WalletHandler) ToggleGas(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.ToggleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.wallet.SetGasAccountEnabled(req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wallet.Settings())
}

// RemoveGas handles DELETE /wallet/gas
// @Summary      Remove the gas account
// @Tags         gas
// @Produce      json
// @Success      200  {object}  model.Settings
// @Router       /wallet/gas [delete]
func (h *WalletHandler) RemoveGas(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}
	if err := h.wallet.RemoveGasAccount(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wallet.Settings())
}

// SetNetwork handles POST /wallet/network
// @Summary      Switch network
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        request  body      model.NetworkRequest  true  "devnet, testnet or mainnet-beta"
// @Success      200      {object}  model.Settings
// @Failure      400      {object}  model.ErrorResponse
// @Router       /wallet/network [post]
func (h *WalletHandler) SetNetwork(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.NetworkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.wallet.SetNetwork(req.Network); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wallet.Settings())
}

// UpdateSettings handles POST /wallet/settings
// @Summary      Update settings
// @Description  Changes the dApp connections and auto-lock toggles. Omitted fields are kept.
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        request  body      model.SettingsRequest  true  "Settings"
// @Success      200      {object}  model.Settings
// @Router       /wallet/settings [post]
func (h *WalletHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.SettingsRequest
	if !decode(w, r, &req) {
		return
	}
	settings, err := h.wallet.UpdateSettings(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
