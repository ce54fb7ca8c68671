package models

import "time"

// -----------------------------------------------------------------------------
// Subscription Types
// -----------------------------------------------------------------------------

const (
	SubTypeAssetData  = "asset_data"
	SubTypeAlert      = "alert"
	SubTypePrediction = "prediction"
	SubTypeAll        = "all"
)

// -----------------------------------------------------------------------------

// NormalizeSubscriptionType maps a raw client "type" string to a known
// subscription type. Empty or unrecognized values fall back to asset_data;
// clients are never rejected over a bad type string.
func NormalizeSubscriptionType(raw string) string {
	switch raw {
	case SubTypeAssetData, SubTypeAlert, SubTypePrediction, SubTypeAll:
		return raw
	default:
		return SubTypeAssetData
	}
}

// -----------------------------------------------------------------------------

// MSubscription represents one (user, asset, type) subscription record.
type MSubscription struct {
	UserID    int64                  `json:"user_id"`
	AssetID   int64                  `json:"asset_id"`
	Type      string                 `json:"type"`
	CreatedAt time.Time              `json:"created_at"`
	Filters   map[string]interface{} `json:"filters,omitempty"` // Optional, replaced wholesale on re-subscribe
}
