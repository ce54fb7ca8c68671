package auth

import (
	"device-push/src/helpers"
	"device-push/src/interfaces"
	"device-push/src/logger"
	"device-push/src/models"
)

// -----------------------------------------------------------------------------
// Token Verification
//
// The authentication protocol itself lives outside this subsystem; anything
// implementing interfaces.IAuthenticator can be injected. StaticVerifier is
// the in-tree implementation: a config-driven token table plus one reserved
// development token accepted only in dev mode.
// -----------------------------------------------------------------------------

type StaticVerifier struct {
	Logger *logger.Logger

	devMode   bool
	devToken  string
	devUserID int64
	tokens    map[string]models.MUserIdentity
}

// -----------------------------------------------------------------------------

// NewStaticVerifier builds a verifier from the auth section of the config.
func NewStaticVerifier(cfg *models.MConfig, log *logger.Logger) *StaticVerifier {
	tokens := make(map[string]models.MUserIdentity, len(cfg.Auth.Tokens))
	for _, tok := range cfg.Auth.Tokens {
		tokens[tok.Token] = models.MUserIdentity{
			UserID:   tok.UserID,
			Username: tok.Username,
		}
	}

	devUserID := cfg.Auth.DevUserID
	if devUserID == 0 {
		devUserID = 1
	}

	return &StaticVerifier{
		Logger:    log,
		devMode:   cfg.Environment == "dev",
		devToken:  cfg.Auth.DevToken,
		devUserID: devUserID,
		tokens:    tokens,
	}
}

// -----------------------------------------------------------------------------

// Verify checks the bearer token taken from the connection query string.
func (v *StaticVerifier) Verify(token string) (*models.MUserIdentity, error) {
	if token == "" {
		return nil, helpers.NewAuthenticationError("missing token", nil)
	}

	if v.devMode && v.devToken != "" && token == v.devToken {
		return &models.MUserIdentity{UserID: v.devUserID, Username: "dev"}, nil
	}

	if identity, ok := v.tokens[token]; ok {
		cp := identity
		return &cp, nil
	}

	return nil, helpers.NewAuthenticationError("invalid token", nil)
}

// Compile-time interface check
var _ interfaces.IAuthenticator = (*StaticVerifier)(nil)
