package subscriptions

import (
	"sync"
	"time"

	"device-push/src/logger"
	"device-push/src/models"
)

// -----------------------------------------------------------------------------
// Subscription Index
//
// Bidirectional index over (user, asset, type) subscription triples. byUser
// answers "what does this user watch", byAsset answers "who watches this
// asset". Every mutation updates both sides under one lock so they can never
// diverge; an asset/type pair with zero subscribers leaves no empty entry
// behind. Asset ids are never validated here: the asset catalog belongs to
// the admin layer, so any id is accepted.
// -----------------------------------------------------------------------------

type subKey struct {
	AssetID int64
	Type    string
}

type Index struct {
	Logger *logger.Logger

	mu      sync.RWMutex
	byUser  map[int64]map[subKey]*models.MSubscription
	byAsset map[subKey]map[int64]struct{}
}

// -----------------------------------------------------------------------------

// NewIndex creates the process-wide subscription index. Construct once at
// startup and inject it; there is no hidden global instance.
func NewIndex(log *logger.Logger) *Index {
	return &Index{
		Logger:  log,
		byUser:  make(map[int64]map[subKey]*models.MSubscription),
		byAsset: make(map[subKey]map[int64]struct{}),
	}
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// Subscribe upserts one subscription record. Re-subscribing the same triple
// replaces the filters wholesale rather than merging them.
func (x *Index) Subscribe(userID, assetID int64, subType string, filters map[string]interface{}) *models.MSubscription {
	subType = models.NormalizeSubscriptionType(subType)
	key := subKey{AssetID: assetID, Type: subType}

	x.mu.Lock()
	defer x.mu.Unlock()

	userSubs, ok := x.byUser[userID]
	if !ok {
		userSubs = make(map[subKey]*models.MSubscription)
		x.byUser[userID] = userSubs
	}

	if existing, ok := userSubs[key]; ok {
		existing.Filters = filters
		return x.copyRecord(existing)
	}

	record := &models.MSubscription{
		UserID:    userID,
		AssetID:   assetID,
		Type:      subType,
		CreatedAt: time.Now().UTC(),
		Filters:   filters,
	}
	userSubs[key] = record

	assetUsers, ok := x.byAsset[key]
	if !ok {
		assetUsers = make(map[int64]struct{})
		x.byAsset[key] = assetUsers
	}
	assetUsers[userID] = struct{}{}

	return x.copyRecord(record)
}

// -----------------------------------------------------------------------------

// SubscribeBatch applies Subscribe once per asset id, in order. It is a
// convenience wrapper, not an atomic unit; Subscribe cannot fail at this
// layer so partial application is not observable in practice.
func (x *Index) SubscribeBatch(userID int64, assetIDs []int64, subType string, filters map[string]interface{}) []*models.MSubscription {
	records := make([]*models.MSubscription, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		records = append(records, x.Subscribe(userID, assetID, subType, filters))
	}
	return records
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the record for (user, asset, subType). An empty
// subType removes the records across all types for that (user, asset) pair.
// Returns true if anything was removed.
func (x *Index) Unsubscribe(userID, assetID int64, subType string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(userID, assetID, subType) > 0
}

// -----------------------------------------------------------------------------

// UnsubscribeBatch removes records for each asset id and returns the total
// number of records removed.
func (x *Index) UnsubscribeBatch(userID int64, assetIDs []int64, subType string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for _, assetID := range assetIDs {
		removed += x.removeLocked(userID, assetID, subType)
	}
	return removed
}

// -----------------------------------------------------------------------------

// UnsubscribeAll removes every subscription of the user from both sides of
// the index in one critical section. Used on disconnect and on supersede.
func (x *Index) UnsubscribeAll(userID int64) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	userSubs, ok := x.byUser[userID]
	if !ok {
		return 0
	}

	for key := range userSubs {
		x.dropAssetUserLocked(key, userID)
	}
	removed := len(userSubs)
	delete(x.byUser, userID)
	return removed
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// ResolveSubscribers returns the deduplicated union of users subscribed to
// exactly subType and users subscribed to the wildcard "all" for the asset.
// The result is a snapshot copy; concurrent mutation cannot corrupt callers
// iterating it mid-delivery.
func (x *Index) ResolveSubscribers(assetID int64, subType string) []int64 {
	subType = models.NormalizeSubscriptionType(subType)

	x.mu.RLock()
	defer x.mu.RUnlock()

	exact := x.byAsset[subKey{AssetID: assetID, Type: subType}]
	wildcard := x.byAsset[subKey{AssetID: assetID, Type: models.SubTypeAll}]

	merged := make(map[int64]struct{}, len(exact)+len(wildcard))
	for userID := range exact {
		merged[userID] = struct{}{}
	}
	if subType != models.SubTypeAll {
		for userID := range wildcard {
			merged[userID] = struct{}{}
		}
	}

	users := make([]int64, 0, len(merged))
	for userID := range merged {
		users = append(users, userID)
	}
	return users
}

// -----------------------------------------------------------------------------

// IsSubscribed reports whether the exact (user, asset, subType) record exists.
func (x *Index) IsSubscribed(userID, assetID int64, subType string) bool {
	key := subKey{AssetID: assetID, Type: models.NormalizeSubscriptionType(subType)}

	x.mu.RLock()
	defer x.mu.RUnlock()

	userSubs, ok := x.byUser[userID]
	if !ok {
		return false
	}
	_, ok = userSubs[key]
	return ok
}

// -----------------------------------------------------------------------------

// ListForUser returns copies of the user's subscriptions; order is not
// guaranteed.
func (x *Index) ListForUser(userID int64) []models.MSubscription {
	x.mu.RLock()
	defer x.mu.RUnlock()

	userSubs := x.byUser[userID]
	out := make([]models.MSubscription, 0, len(userSubs))
	for _, record := range userSubs {
		out = append(out, *x.copyRecord(record))
	}
	return out
}

// -----------------------------------------------------------------------------

// CountForUser returns the number of subscription records the user holds.
func (x *Index) CountForUser(userID int64) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byUser[userID])
}

// -----------------------------------------------------------------------------

// Count returns the total number of subscription records.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	total := 0
	for _, userSubs := range x.byUser {
		total += len(userSubs)
	}
	return total
}

// -----------------------------------------------------------------------------
// Internals (callers hold x.mu)
// -----------------------------------------------------------------------------

var allSubTypes = []string{
	models.SubTypeAssetData,
	models.SubTypeAlert,
	models.SubTypePrediction,
	models.SubTypeAll,
}

func (x *Index) removeLocked(userID, assetID int64, subType string) int {
	userSubs, ok := x.byUser[userID]
	if !ok {
		return 0
	}

	types := allSubTypes
	if subType != "" {
		types = []string{models.NormalizeSubscriptionType(subType)}
	}

	removed := 0
	for _, t := range types {
		key := subKey{AssetID: assetID, Type: t}
		if _, ok := userSubs[key]; !ok {
			continue
		}
		delete(userSubs, key)
		x.dropAssetUserLocked(key, userID)
		removed++
	}
	if len(userSubs) == 0 {
		delete(x.byUser, userID)
	}
	return removed
}

func (x *Index) dropAssetUserLocked(key subKey, userID int64) {
	assetUsers, ok := x.byAsset[key]
	if !ok {
		return
	}
	delete(assetUsers, userID)
	if len(assetUsers) == 0 {
		delete(x.byAsset, key)
	}
}

func (x *Index) copyRecord(record *models.MSubscription) *models.MSubscription {
	cp := *record
	return &cp
}
