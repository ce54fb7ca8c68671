package interfaces

// -----------------------------------------------------------------------------
// IEventPublisher is the producer-facing surface of the router. Upstream
// producers (ingestion pipeline, alert engine, prediction engine) call it
// with no delivery confirmation expected.
// -----------------------------------------------------------------------------

type IEventPublisher interface {

	// -----------------------------------------------------------------------------

	// PublishAssetData fans an asset_data event out to every subscriber of
	// the asset (exact type or wildcard). Returns the delivered count.
	PublishAssetData(assetID int64, data map[string]interface{}) int

	// -----------------------------------------------------------------------------

	// PublishAlert delivers an alert directly to one user. Alerts are
	// pre-targeted by the producer, not resolved through asset subscriptions.
	PublishAlert(userID int64, alert map[string]interface{}) bool

	// -----------------------------------------------------------------------------

	// PublishPrediction fans a prediction event out to the asset's
	// prediction (or wildcard) subscribers. Returns the delivered count.
	PublishPrediction(assetID int64, prediction map[string]interface{}) int
}
