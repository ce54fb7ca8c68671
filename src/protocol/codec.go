package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"device-push/src/helpers"
	"device-push/src/models"
)

// -----------------------------------------------------------------------------
// Wire Codec
//
// One decode dispatch point for client frames and one constructor per server
// envelope kind. Everything on the wire is a JSON object tagged with an
// "action" (client -> server) or "type" (server -> client) discriminator.
// -----------------------------------------------------------------------------

// Timestamp returns the envelope timestamp in the platform's JSON style.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// -----------------------------------------------------------------------------
// Decoding (client -> server)
// -----------------------------------------------------------------------------

// DecodeClientCommand parses one inbound frame. A parse failure is a
// MalformedMessageError: the caller reports it on the connection and keeps
// the connection open.
func DecodeClientCommand(raw []byte) (*models.MClientCommand, error) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, helpers.NewMalformedMessageError("invalid JSON format", err)
	}
	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	return &cmd, nil
}

// -----------------------------------------------------------------------------
// Encoding (server -> client)
// -----------------------------------------------------------------------------

func NewConnectionEnvelope(userID int64) *models.MConnectionEnvelope {
	return &models.MConnectionEnvelope{
		Type:      models.EnvelopeConnection,
		Status:    "connected",
		UserID:    userID,
		Timestamp: Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewSubscribeResponse(assetIDs []int64, subType string) *models.MSubscribeResponse {
	return &models.MSubscribeResponse{
		Type:             models.EnvelopeSubscribeResponse,
		Success:          true,
		SubscribedAssets: assetIDs,
		SubscriptionType: subType,
		Timestamp:        Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewUnsubscribeResponse(assetIDs []int64, removed int) *models.MUnsubscribeResponse {
	return &models.MUnsubscribeResponse{
		Type:               models.EnvelopeUnsubscribeResponse,
		Success:            true,
		UnsubscribedAssets: assetIDs,
		RemovedCount:       removed,
		Timestamp:          Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewPongEnvelope() *models.MPongEnvelope {
	return &models.MPongEnvelope{
		Type:      models.EnvelopePong,
		Timestamp: Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewSubscriptionsResponse(subs []models.MSubscription) *models.MSubscriptionsResponse {
	infos := make([]models.MSubscriptionInfo, 0, len(subs))
	for _, s := range subs {
		infos = append(infos, models.MSubscriptionInfo{
			AssetID:   s.AssetID,
			Type:      s.Type,
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return &models.MSubscriptionsResponse{
		Type:          models.EnvelopeSubscriptionsResponse,
		Subscriptions: infos,
		Timestamp:     Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewErrorEnvelope(message string) *models.MErrorEnvelope {
	return &models.MErrorEnvelope{
		Type:      models.EnvelopeError,
		Message:   message,
		Timestamp: Timestamp(),
	}
}

// -----------------------------------------------------------------------------

// NewAssetDataEnvelope wraps a produced reading. The quality indicator comes
// from the payload's "quality" key when the producer set one, "good" otherwise.
func NewAssetDataEnvelope(assetID int64, data map[string]interface{}) *models.MAssetDataEnvelope {
	quality := "good"
	if q, ok := data["quality"].(string); ok && q != "" {
		quality = q
	}
	return &models.MAssetDataEnvelope{
		Type:      models.EnvelopeAssetData,
		AssetID:   assetID,
		Data:      data,
		Quality:   quality,
		Timestamp: Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewAlertEnvelope(alert map[string]interface{}) *models.MAlertEnvelope {
	return &models.MAlertEnvelope{
		Type:      models.EnvelopeAlert,
		Alert:     alert,
		Timestamp: Timestamp(),
	}
}

// -----------------------------------------------------------------------------

func NewPredictionEnvelope(assetID int64, prediction map[string]interface{}) *models.MPredictionEnvelope {
	return &models.MPredictionEnvelope{
		Type:       models.EnvelopePrediction,
		AssetID:    assetID,
		Prediction: prediction,
		Timestamp:  Timestamp(),
	}
}
