package model

import "time"

// SitePermissions are the grants a user gave a connected origin
type SitePermissions struct {
	AutoApprove bool `json:"autoApprove"`
}

// ConnectedSite is a dApp origin the user approved. Origin is unique.
type ConnectedSite struct {
	Origin      string          `json:"origin"`
	Title       string          `json:"title"`
	Icon        string          `json:"icon,omitempty"`
	ConnectedAt time.Time       `json:"connectedAt"`
	Permissions SitePermissions `json:"permissions"`
}

// PermissionsRequest represents request for POST /dapp/sites/permissions
type PermissionsRequest struct {
	Origin      string `json:"origin" binding:"required"`
	AutoApprove bool   `json:"autoApprove"`
}

// ToggleRequest represents request for boolean toggle endpoints
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// NetworkRequest represents request for POST /wallet/network
type NetworkRequest struct {
	Network string `json:"network" binding:"required"`
}

// SettingsRequest represents request for POST /wallet/settings
type SettingsRequest struct {
	DAppsEnabled *bool `json:"dappsEnabled,omitempty"`
	AutoLock     *bool `json:"autoLock,omitempty"`
}
