package interfaces

// -----------------------------------------------------------------------------
// ISubscriptionPurger is the narrow slice of the subscription index the
// connection registry needs for teardown and supersede cleanup.
// -----------------------------------------------------------------------------

type ISubscriptionPurger interface {

	// UnsubscribeAll removes every subscription of the user from both sides
	// of the index and returns the number of records removed.
	UnsubscribeAll(userID int64) int
}
