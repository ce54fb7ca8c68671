package models

import (
	"bytes"
	"encoding/json"
)

// -----------------------------------------------------------------------------
// Client Command (client -> server)
// -----------------------------------------------------------------------------

const (
	ActionSubscribe        = "subscribe"
	ActionUnsubscribe      = "unsubscribe"
	ActionPing             = "ping"
	ActionGetSubscriptions = "get_subscriptions"
)

// -----------------------------------------------------------------------------

// MAssetIDList decodes either a single integer or a list of integers,
// so {"asset_ids": 5} and {"asset_ids": [5]} are equivalent on the wire.
type MAssetIDList []int64

func (l *MAssetIDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}

	if data[0] == '[' {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		*l = ids
		return nil
	}

	// Scalar form coerced to a one-element list
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*l = MAssetIDList{id}
	return nil
}

// -----------------------------------------------------------------------------

// MClientCommand is the single client frame shape; Action discriminates.
type MClientCommand struct {
	Action   string                 `json:"action"`
	AssetIDs MAssetIDList           `json:"asset_ids"`
	Type     string                 `json:"type"`    // Optional, defaults to asset_data
	Filters  map[string]interface{} `json:"filters"` // Optional opaque filter map
}

// -----------------------------------------------------------------------------
// Server Envelopes (server -> client), each tagged with Type
// -----------------------------------------------------------------------------

const (
	EnvelopeConnection            = "connection"
	EnvelopeSubscribeResponse     = "subscribe_response"
	EnvelopeUnsubscribeResponse   = "unsubscribe_response"
	EnvelopePong                  = "pong"
	EnvelopeSubscriptionsResponse = "subscriptions_response"
	EnvelopeError                 = "error"
	EnvelopeAssetData             = "asset_data"
	EnvelopeAlert                 = "alert"
	EnvelopePrediction            = "prediction"
)

// -----------------------------------------------------------------------------

type MConnectionEnvelope struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	UserID    int64  `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MSubscribeResponse struct {
	Type             string  `json:"type"`
	Success          bool    `json:"success"`
	SubscribedAssets []int64 `json:"subscribed_assets"`
	SubscriptionType string  `json:"subscription_type"`
	Timestamp        string  `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MUnsubscribeResponse struct {
	Type               string  `json:"type"`
	Success            bool    `json:"success"`
	UnsubscribedAssets []int64 `json:"unsubscribed_assets"`
	RemovedCount       int     `json:"removed_count"`
	Timestamp          string  `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MPongEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MSubscriptionInfo struct {
	AssetID   int64  `json:"asset_id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

type MSubscriptionsResponse struct {
	Type          string              `json:"type"`
	Subscriptions []MSubscriptionInfo `json:"subscriptions"`
	Timestamp     string              `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MErrorEnvelope struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MAssetDataEnvelope struct {
	Type      string                 `json:"type"`
	AssetID   int64                  `json:"asset_id"`
	Data      map[string]interface{} `json:"data"`
	Quality   string                 `json:"quality"` // "good" unless the producer says otherwise
	Timestamp string                 `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MAlertEnvelope struct {
	Type      string                 `json:"type"`
	Alert     map[string]interface{} `json:"alert"`
	Timestamp string                 `json:"timestamp"`
}

// -----------------------------------------------------------------------------

type MPredictionEnvelope struct {
	Type       string                 `json:"type"`
	AssetID    int64                  `json:"asset_id"`
	Prediction map[string]interface{} `json:"prediction"`
	Timestamp  string                 `json:"timestamp"`
}
