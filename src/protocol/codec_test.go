package protocol_test

import (
	"errors"
	"testing"
	"time"

	"device-push/src/helpers"
	"device-push/src/models"
	"device-push/src/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

func TestDecodeScalarAssetIDCoercion(t *testing.T) {
	cmd, err := protocol.DecodeClientCommand([]byte(`{"action":"subscribe","asset_ids":5}`))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSubscribe, cmd.Action)
	assert.Equal(t, models.MAssetIDList{5}, cmd.AssetIDs)
}

func TestDecodeAssetIDList(t *testing.T) {
	cmd, err := protocol.DecodeClientCommand([]byte(`{"action":"unsubscribe","asset_ids":[1,2,3],"type":"alert"}`))
	require.NoError(t, err)
	assert.Equal(t, models.MAssetIDList{1, 2, 3}, cmd.AssetIDs)
	assert.Equal(t, "alert", cmd.Type)
}

func TestDecodeNullAssetIDs(t *testing.T) {
	cmd, err := protocol.DecodeClientCommand([]byte(`{"action":"subscribe","asset_ids":null}`))
	require.NoError(t, err)
	assert.Empty(t, cmd.AssetIDs)
}

func TestDecodeNormalizesAction(t *testing.T) {
	cmd, err := protocol.DecodeClientCommand([]byte(`{"action":" PING "}`))
	require.NoError(t, err)
	assert.Equal(t, models.ActionPing, cmd.Action)
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := protocol.DecodeClientCommand([]byte("not-json"))
	require.Error(t, err)

	var malformed *helpers.MalformedMessageError
	assert.True(t, errors.As(err, &malformed))
}

func TestDecodeFilters(t *testing.T) {
	cmd, err := protocol.DecodeClientCommand([]byte(`{"action":"subscribe","asset_ids":[1],"filters":{"severity":"high"}}`))
	require.NoError(t, err)
	assert.Equal(t, "high", cmd.Filters["severity"])
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

func TestAssetDataQualityDefaultsToGood(t *testing.T) {
	env := protocol.NewAssetDataEnvelope(42, map[string]interface{}{"temp": 10})
	assert.Equal(t, models.EnvelopeAssetData, env.Type)
	assert.Equal(t, int64(42), env.AssetID)
	assert.Equal(t, "good", env.Quality)
}

func TestAssetDataQualityFromProducer(t *testing.T) {
	env := protocol.NewAssetDataEnvelope(42, map[string]interface{}{"temp": 10, "quality": "stale"})
	assert.Equal(t, "stale", env.Quality)
}

func TestSubscriptionsResponseMapping(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	resp := protocol.NewSubscriptionsResponse([]models.MSubscription{
		{UserID: 7, AssetID: 42, Type: models.SubTypeAlert, CreatedAt: created},
	})
	require.Len(t, resp.Subscriptions, 1)
	assert.Equal(t, int64(42), resp.Subscriptions[0].AssetID)
	assert.Equal(t, models.SubTypeAlert, resp.Subscriptions[0].Type)
	assert.Equal(t, "2026-08-01T12:00:00Z", resp.Subscriptions[0].CreatedAt)
}

func TestEnvelopeTimestampsAreRFC3339(t *testing.T) {
	env := protocol.NewPongEnvelope()
	_, err := time.Parse(time.RFC3339, env.Timestamp)
	assert.NoError(t, err)

	errEnv := protocol.NewErrorEnvelope("boom")
	_, err = time.Parse(time.RFC3339, errEnv.Timestamp)
	assert.NoError(t, err)
	assert.Equal(t, models.EnvelopeError, errEnv.Type)
	assert.Equal(t, "boom", errEnv.Message)
}
