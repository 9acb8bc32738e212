package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/AlexZinkM/oasis-wallet/internal/handler"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/transport"
	"github.com/AlexZinkM/oasis-wallet/internal/wallet"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// SetupRouter sets up router with handlers
func SetupRouter(w *wallet.Wallet, dispatcher transport.Handler, logger *zap.Logger) http.Handler {
	walletHandler := handler.NewWalletHandler(w)
	dappHandler := handler.NewDAppHandler(w.Broker())
	rpcHandler := handler.NewRPCHandler(dispatcher, w, w.Broker(), logger.Named("rpc"))

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Wallet endpoints
	mux.HandleFunc("/wallet/create", walletHandler.Create)
	mux.HandleFunc("/wallet/import", walletHandler.Import)
	mux.HandleFunc("/wallet/unlock", walletHandler.Unlock)
	mux.HandleFunc("/wallet/lock", walletHandler.Lock)
	mux.HandleFunc("/wallet/status", walletHandler.Status)
	mux.HandleFunc("/wallet/password", walletHandler.ChangePassword)
	mux.HandleFunc("/wallet/balance", walletHandler.GetBalance)
	mux.HandleFunc("/wallet/receive", walletHandler.Receive)
	mux.HandleFunc("/wallet/send", walletHandler.Send)
	mux.HandleFunc("/wallet/transactions", walletHandler.TransactionHistory)
	mux.HandleFunc("/wallet/gas/import", walletHandler.ImportGas)
	mux.HandleFunc("/wallet/gas/toggle", walletHandler.ToggleGas)
	mux.HandleFunc("/wallet/gas", walletHandler.RemoveGas)
	mux.HandleFunc("/wallet/network", walletHandler.SetNetwork)
	mux.HandleFunc("/wallet/settings", walletHandler.UpdateSettings)

	// dApp approval endpoints
	mux.HandleFunc("/dapp/requests", dappHandler.Requests)
	mux.HandleFunc("/dapp/requests/{id}/approve", dappHandler.Approve)
	mux.HandleFunc("/dapp/requests/{id}/reject", dappHandler.Reject)
	mux.HandleFunc("/dapp/sites", dappHandler.Sites)
	mux.HandleFunc("/dapp/sites/permissions", dappHandler.Permissions)

	// Page bridge
	mux.HandleFunc("/rpc", rpcHandler.Serve)

	return localOnly(mux)
}

// localOnly keeps web pages away from the wallet API. Browsers stamp an Origin
// on every cross-site POST, so such requests may only reach the page bridge.
func localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || r.URL.Path == "/rpc" || sameHost(origin, r.Host) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(model.ErrorResponse{
			Error: "cross-origin requests are only accepted on /rpc",
			Code:  "FORBIDDEN",
		})
	})
}

// sameHost reports whether origin names the server itself, as the swagger UI does
func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && u.Host == host
}
