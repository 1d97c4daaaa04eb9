package service

import (
	"context"
	"errors"
	"time"

	"caresight/backend/internal/security"
	sessiondomain "caresight/backend/internal/session/domain"
)

// Sentinel errors for access token validation. Expired is distinct from
// invalid so clients know whether a refresh is worth attempting.
var (
	ErrTokenExpired   = errors.New("access token expired")
	ErrTokenInvalid   = errors.New("access token invalid")
	ErrSessionRevoked = errors.New("session revoked")
)

// Identity is the authenticated caller extracted from a valid access token.
type Identity struct {
	UserID    string
	TenantID  string
	SessionID string
}

// SessionStore is the minimal session lookup needed by the validator.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// SessionValidator checks access tokens against signature, expiry, and the
// session store, so a revoked session dies before the token does.
type SessionValidator struct {
	tokens   *security.TokenProvider
	sessions SessionStore
	nowF     func() time.Time
}

// NewSessionValidator returns a SessionValidator with the given dependencies.
func NewSessionValidator(tokens *security.TokenProvider, sessions SessionStore) *SessionValidator {
	return &SessionValidator{
		tokens:   tokens,
		sessions: sessions,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// ValidateAccess parses and verifies the bearer token and confirms the backing
// session is still live. Any session store failure fails closed as
// ErrSessionRevoked rather than letting an unverifiable session through.
func (v *SessionValidator) ValidateAccess(ctx context.Context, token string) (*Identity, error) {
	sessionID, userID, tenantID, err := v.tokens.ValidateAccess(token)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	sess, err := v.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionRevoked
	}
	if sess == nil || !sess.Live(v.nowF()) {
		return nil, ErrSessionRevoked
	}
	return &Identity{UserID: userID, TenantID: tenantID, SessionID: sessionID}, nil
}
