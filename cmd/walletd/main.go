// walletd is the local wallet daemon: it serves the wallet UI API and the page bridge.
// Usage: go run ./cmd/walletd
//
// @title        Oasis Wallet API
// @version      1.0
// @description  Local Solana wallet with dApp request approval.
// @host         localhost:8080
// @BasePath     /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/AlexZinkM/oasis-wallet/docs"
	"github.com/AlexZinkM/oasis-wallet/internal/api"
	"github.com/AlexZinkM/oasis-wallet/internal/client"
	"github.com/AlexZinkM/oasis-wallet/internal/config"
	"github.com/AlexZinkM/oasis-wallet/internal/crypto"
	"github.com/AlexZinkM/oasis-wallet/internal/logging"
	"github.com/AlexZinkM/oasis-wallet/internal/storage"
	"github.com/AlexZinkM/oasis-wallet/internal/transport"
	"github.com/AlexZinkM/oasis-wallet/internal/wallet"
	engine "github.com/AlexZinkM/oasis-wallet/solana"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("walletd stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	chains := func(network string) (wallet.Chain, error) {
		url, err := cfg.RPCEndpoint(network)
		if err != nil {
			return nil, err
		}
		return client.NewSolanaClient(url, cfg.RPCRateLimit, cfg.RPCTimeout, logger.Named("rpc").With(zap.String("network", network))), nil
	}

	w, err := wallet.New(store, wallet.Options{
		Network:       cfg.Network,
		Chain:         chains,
		Vault:         crypto.NewVault(crypto.Params{N: cfg.ScryptN, R: cfg.ScryptR, P: cfg.ScryptP}),
		AutoLockAfter: cfg.AutoLockAfter(),
		SessionTTL:    cfg.SessionTTL(),
		PayCooldown:   cfg.PayCooldownDuration(),
		HistoryLimit:  cfg.HistoryLimit,
		Engine: engine.Options{
			ConfirmTimeout: cfg.ConfirmTimeout,
			PollInterval:   cfg.ConfirmPollInterval,
		},
	}, logger.Named("wallet"))
	if err != nil {
		return err
	}
	defer w.Close()

	if cfg.UnlockOnStart {
		unlockOnStart(w, logger)
	}

	dispatcher := transport.NewDispatcher(w.Broker(), w, cfg.RequestTimeout, logger.Named("dispatcher"))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.SetupRouter(w, dispatcher, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("network", w.Settings().Network))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// unlockOnStart asks for the password on the terminal so the first requests need no UI unlock
func unlockOnStart(w *wallet.Wallet, logger *zap.Logger) {
	initialized, err := w.Initialized()
	if err != nil || !initialized {
		logger.Info("no wallet yet, skipping unlock on start")
		return
	}

	password, err := config.PromptForPassword("Wallet password: ")
	if err != nil {
		logger.Warn("skipping unlock on start", zap.Error(err))
		return
	}
	defer clear(password) // Always clear password from memory

	if _, err := w.Unlock(password); err != nil {
		logger.Warn("unlock on start failed", zap.Error(err))
	}
}
