package broker

import (
	"fmt"
	"slices"

	"github.com/AlexZinkM/oasis-wallet/internal/logging"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
)

// Sites returns the connected sites in connection order
func (b *Broker) Sites() []model.ConnectedSite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.sites)
}

// Site returns the connected site for origin
func (b *Broker) Site(origin string) (model.ConnectedSite, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.siteIndex(origin); i >= 0 {
		return b.sites[i], true
	}
	return model.ConnectedSite{}, false
}

// IsConnected reports whether origin has an approved connection
func (b *Broker) IsConnected(origin string) bool {
	_, ok := b.Site(origin)
	return ok
}

// SetAutoApprove changes the autoApprove grant of a connected site
func (b *Broker) SetAutoApprove(origin string, autoApprove bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.siteIndex(origin)
	if i < 0 {
		return fmt.Errorf("%s: %w", origin, model.ErrNotConnected)
	}

	sites := slices.Clone(b.sites)
	sites[i].Permissions.AutoApprove = autoApprove
	if err := b.saveSites(sites); err != nil {
		return err
	}
	b.logger.Info("site permissions updated", logging.Origin(origin))
	return nil
}

// Disconnect removes origin from the connected sites. Resolved requests are kept.
func (b *Broker) Disconnect(origin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.siteIndex(origin)
	if i < 0 {
		return nil
	}
	if err := b.saveSites(slices.Delete(slices.Clone(b.sites), i, i+1)); err != nil {
		return err
	}
	b.logger.Info("site disconnected", logging.Origin(origin))
	return nil
}

// upsertSite records an approved connection, refreshing the display data of a known origin
func (b *Broker) upsertSite(meta Meta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sites := slices.Clone(b.sites)
	if i := b.siteIndex(meta.Origin); i >= 0 {
		sites[i].Title = meta.Title
		sites[i].Icon = meta.Icon
	} else {
		sites = append(sites, model.ConnectedSite{
			Origin:      meta.Origin,
			Title:       meta.Title,
			Icon:        meta.Icon,
			ConnectedAt: b.now(),
		})
	}
	return b.saveSites(sites)
}

// saveSites persists sites and then adopts them. Caller holds mu.
func (b *Broker) saveSites(sites []model.ConnectedSite) error {
	if err := b.store.SaveSites(sites); err != nil {
		return fmt.Errorf("failed to save connected sites: %w", err)
	}
	b.sites = sites
	return nil
}

func (b *Broker) siteIndex(origin string) int {
	return slices.IndexFunc(b.sites, func(s model.ConnectedSite) bool {
		return s.Origin == origin
	})
}
