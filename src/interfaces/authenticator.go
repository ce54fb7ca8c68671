package interfaces

import "device-push/src/models"

// -----------------------------------------------------------------------------
// IAuthenticator defines the external token verifier called once at connect time.
// -----------------------------------------------------------------------------

type IAuthenticator interface {

	// -----------------------------------------------------------------------------

	// Verify checks a bearer token and returns the pre-validated identity.
	// A nil identity (with error) means the connection must be rejected;
	// no registry state may exist for a rejected token.
	Verify(token string) (*models.MUserIdentity, error)
}
