package server

import (
	"fmt"
	"sync/atomic"
	"time"

	"device-push/src/helpers"
	"device-push/src/interfaces"
	"device-push/src/logger"
	"device-push/src/models"
	"device-push/src/protocol"
	"device-push/src/registry"
	"device-push/src/subscriptions"
)

// -----------------------------------------------------------------------------
// Message Router
//
// Inbound: decodes client control frames and applies them to the
// subscription index; an acknowledgment goes out only after the index
// mutation is applied. Message-level failures (bad JSON, unknown action) are
// answered with an error envelope and the connection stays open.
//
// Outbound: producer-initiated publications resolved through the index and
// delivered through the registry. A failed recipient is logged and skipped;
// nothing here retries and nothing escalates past the connection boundary.
// -----------------------------------------------------------------------------

type Router struct {
	Registry *registry.Registry
	Index    *subscriptions.Index
	Journal  interfaces.IDatabase
	Logger   *logger.Logger
	Errors   *helpers.ErrorHandler

	received         atomic.Int64
	routed           atomic.Int64
	parseErrors      atomic.Int64
	unknownActions   atomic.Int64
	delivered        atomic.Int64
	deliveryFailures atomic.Int64
}

// -----------------------------------------------------------------------------

// RouterStats contains runtime counters, surfaced on /api/stats.
type RouterStats struct {
	Received         int64 `json:"received"`
	Routed           int64 `json:"routed"`
	ParseErrors      int64 `json:"parse_errors"`
	UnknownActions   int64 `json:"unknown_actions"`
	Delivered        int64 `json:"delivered"`
	DeliveryFailures int64 `json:"delivery_failures"`
}

// -----------------------------------------------------------------------------

func NewRouter(reg *registry.Registry, index *subscriptions.Index, journal interfaces.IDatabase, log *logger.Logger) *Router {
	return &Router{
		Registry: reg,
		Index:    index,
		Journal:  journal,
		Logger:   log,
		Errors:   helpers.NewErrorHandler(log),
	}
}

// -----------------------------------------------------------------------------
// Connection Lifecycle
// -----------------------------------------------------------------------------

// HandleConnect registers the session; the registry handles supersede
// semantics and the welcome envelope.
func (rt *Router) HandleConnect(sess interfaces.ISession) bool {
	return rt.Registry.Connect(sess)
}

// -----------------------------------------------------------------------------

// HandleDisconnect runs the full teardown for a dying connection: registry
// removal and subscription purge. The purge is an in-memory operation that
// always runs to completion; it is not cancellable. A superseded session
// skips teardown entirely because its replacement owns the user's state.
func (rt *Router) HandleDisconnect(sess interfaces.ISession) {
	userID := sess.UserID()

	if !rt.Registry.DisconnectSession(sess) {
		return
	}
	// The registry's disconnect already purged; this is the independent
	// index-side call so a fault in one path cannot leave the other undone.
	if removed := rt.Index.UnsubscribeAll(userID); removed > 0 {
		rt.Logger.Info("Cleaned up %d subscriptions for user %d", removed, userID)
	}
}

// -----------------------------------------------------------------------------
// Inbound Client Messages
// -----------------------------------------------------------------------------

// HandleClientMessage processes one inbound frame from an OPEN connection.
func (rt *Router) HandleClientMessage(sess interfaces.ISession, raw []byte) {
	rt.received.Add(1)

	cmd, err := protocol.DecodeClientCommand(raw)
	if err != nil {
		rt.parseErrors.Add(1)
		sess.Send(protocol.NewErrorEnvelope("invalid JSON format"))
		return
	}

	switch cmd.Action {
	case models.ActionSubscribe:
		rt.handleSubscribe(sess, cmd)
	case models.ActionUnsubscribe:
		rt.handleUnsubscribe(sess, cmd)
	case models.ActionPing:
		sess.Send(protocol.NewPongEnvelope())
	case models.ActionGetSubscriptions:
		sess.Send(protocol.NewSubscriptionsResponse(rt.Index.ListForUser(sess.UserID())))
	default:
		rt.unknownActions.Add(1)
		actionErr := helpers.NewUnknownActionError(cmd.Action)
		rt.Logger.Debug("User %d: %v", sess.UserID(), actionErr)
		sess.Send(protocol.NewErrorEnvelope(actionErr.Message))
		return
	}
	rt.routed.Add(1)
}

// -----------------------------------------------------------------------------

func (rt *Router) handleSubscribe(sess interfaces.ISession, cmd *models.MClientCommand) {
	if len(cmd.AssetIDs) == 0 {
		sess.Send(protocol.NewErrorEnvelope("asset_ids is required"))
		return
	}

	userID := sess.UserID()
	subType := models.NormalizeSubscriptionType(cmd.Type)
	assetIDs := []int64(cmd.AssetIDs)

	rt.Index.SubscribeBatch(userID, assetIDs, subType, cmd.Filters)
	sess.CacheAssets(assetIDs)

	// Ack only after the index mutation is applied
	sess.Send(protocol.NewSubscribeResponse(assetIDs, subType))

	rt.journalEvent(sess, models.EventSubscribed, fmt.Sprintf("%d assets (%s)", len(assetIDs), subType))
}

// -----------------------------------------------------------------------------

func (rt *Router) handleUnsubscribe(sess interfaces.ISession, cmd *models.MClientCommand) {
	if len(cmd.AssetIDs) == 0 {
		sess.Send(protocol.NewErrorEnvelope("asset_ids is required"))
		return
	}

	userID := sess.UserID()
	assetIDs := []int64(cmd.AssetIDs)

	// An omitted type removes the pair across all subscription types
	subType := ""
	if cmd.Type != "" {
		subType = models.NormalizeSubscriptionType(cmd.Type)
	}

	removed := rt.Index.UnsubscribeBatch(userID, assetIDs, subType)

	// Drop an asset from the connection-local cache only when no record of
	// any event class survives for it; a partial unsubscribe (one class of
	// several) keeps the asset in the snapshot.
	remaining := make(map[int64]struct{})
	for _, sub := range rt.Index.ListForUser(userID) {
		remaining[sub.AssetID] = struct{}{}
	}
	gone := make([]int64, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		if _, ok := remaining[assetID]; !ok {
			gone = append(gone, assetID)
		}
	}
	sess.UncacheAssets(gone)

	sess.Send(protocol.NewUnsubscribeResponse(assetIDs, removed))

	rt.journalEvent(sess, models.EventUnsubscribed, fmt.Sprintf("%d assets, %d removed", len(assetIDs), removed))
}

// -----------------------------------------------------------------------------
// Outbound Publications
// -----------------------------------------------------------------------------

// PublishAssetData fans one reading out to the asset's subscribers (exact
// type union wildcard). Per-recipient failure is logged and skipped; the
// registry has already dropped the dead connection by the time Send returns
// false.
func (rt *Router) PublishAssetData(assetID int64, data map[string]interface{}) int {
	recipients := rt.Index.ResolveSubscribers(assetID, models.SubTypeAssetData)
	if len(recipients) == 0 {
		return 0
	}

	envelope := protocol.NewAssetDataEnvelope(assetID, data)
	return rt.deliver(recipients, envelope)
}

// -----------------------------------------------------------------------------

// PublishAlert delivers one alert directly to its target user. Alerts are
// pre-targeted by the producer and deliberately not resolved through asset
// subscriptions.
func (rt *Router) PublishAlert(userID int64, alert map[string]interface{}) bool {
	if rt.Registry.Send(userID, protocol.NewAlertEnvelope(alert)) {
		rt.delivered.Add(1)
		return true
	}
	rt.deliveryFailures.Add(1)
	rt.Logger.Debug("Alert for user %d not delivered (offline or dead connection)", userID)
	return false
}

// -----------------------------------------------------------------------------

// PublishPrediction fans one prediction out to the asset's prediction (or
// wildcard) subscribers.
func (rt *Router) PublishPrediction(assetID int64, prediction map[string]interface{}) int {
	recipients := rt.Index.ResolveSubscribers(assetID, models.SubTypePrediction)
	if len(recipients) == 0 {
		return 0
	}

	envelope := protocol.NewPredictionEnvelope(assetID, prediction)
	return rt.deliver(recipients, envelope)
}

// -----------------------------------------------------------------------------

func (rt *Router) deliver(recipients []int64, envelope interface{}) int {
	delivered := 0
	for _, userID := range recipients {
		if rt.Registry.Send(userID, envelope) {
			delivered++
			continue
		}
		rt.deliveryFailures.Add(1)
		rt.Errors.Handle("delivery", helpers.NewDeliveryError(userID, nil))
	}
	rt.delivered.Add(int64(delivered))
	return delivered
}

// -----------------------------------------------------------------------------

// Stats returns a snapshot of the router counters.
func (rt *Router) Stats() RouterStats {
	return RouterStats{
		Received:         rt.received.Load(),
		Routed:           rt.routed.Load(),
		ParseErrors:      rt.parseErrors.Load(),
		UnknownActions:   rt.unknownActions.Load(),
		Delivered:        rt.delivered.Load(),
		DeliveryFailures: rt.deliveryFailures.Load(),
	}
}

// -----------------------------------------------------------------------------

func (rt *Router) journalEvent(sess interfaces.ISession, event, detail string) {
	if rt.Journal == nil {
		return
	}
	ev := models.MSessionEvent{
		UserID:    sess.UserID(),
		SessionID: sess.SessionID(),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := rt.Journal.RecordEvent(ev); err != nil {
		rt.Logger.Warning("Failed to journal %s for user %d: %v", event, sess.UserID(), err)
	}
}

// Compile-time interface check
var _ interfaces.IEventPublisher = (*Router)(nil)
