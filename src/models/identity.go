package models

// MUserIdentity is the pre-validated identity returned by the authenticator.
type MUserIdentity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}
