package wallet

import (
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/config"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	engine "github.com/AlexZinkM/oasis-wallet/solana"

	"go.uber.org/zap"
)

const explorerBaseURL = "https://solscan.io"

// Settings returns the current preferences
func (w *Wallet) Settings() model.Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// UpdateSettings applies the fields set in req
func (w *Wallet) UpdateSettings(req model.SettingsRequest) (model.Settings, error) {
	err := w.updateSettings(func(s *model.Settings) {
		if req.DAppsEnabled != nil {
			s.DAppsEnabled = *req.DAppsEnabled
		}
		if req.AutoLock != nil {
			s.AutoLock = *req.AutoLock
		}
	})
	if err != nil {
		return model.Settings{}, err
	}

	settings := w.Settings()
	w.broker.SetEnabled(settings.DAppsEnabled)
	if req.AutoLock != nil && w.accounts.Unlocked() {
		w.armAutoLock()
	}
	return settings, nil
}

// SetNetwork switches every chain dependent component to network.
// Cached balances and locally tracked transactions are dropped.
func (w *Wallet) SetNetwork(network string) error {
	if !config.IsKnownNetwork(network) {
		return fmt.Errorf("%q: %w", network, model.ErrUnknownNetwork)
	}

	chain, err := w.newChain(network)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", network, err)
	}

	w.mu.Lock()
	w.chain = chain
	w.engine = engine.NewEngine(chain, w.accounts, w.engineOpts, w.logger)
	w.recent = nil
	w.mu.Unlock()
	w.accounts.SetBalanceSource(chain)

	if err := w.updateSettings(func(s *model.Settings) { s.Network = network }); err != nil {
		return err
	}
	w.logger.Info("network switched", zap.String("network", network))
	return nil
}

// ExplorerURL links a transaction signature on the block explorer of the current network
func (w *Wallet) ExplorerURL(signature string) string {
	network := w.Settings().Network
	if network == config.NetworkMainnet {
		return fmt.Sprintf("%s/tx/%s", explorerBaseURL, signature)
	}
	return fmt.Sprintf("%s/tx/%s?cluster=%s", explorerBaseURL, signature, network)
}

// updateSettings mutates and persists the settings, keeping the old value on failure
func (w *Wallet) updateSettings(mutate func(*model.Settings)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.settings
	mutate(&next)
	if err := w.store.SaveSettings(next); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	w.settings = next
	return nil
}
