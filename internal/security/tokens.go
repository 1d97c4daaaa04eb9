package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, has a bad signature,
	// or carries the wrong issuer/audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token is well-formed and correctly signed
	// but past its expiry.
	ErrExpiredToken = errors.New("expired token")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
}

// RefreshClaims holds JWT claims for the refresh token (includes jti for rotation).
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256.
// Validation accepts the current public key and, during a signing-key rotation window,
// one previous public key so tokens minted before the rotation stay valid until expiry.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKeys []crypto.PublicKey // index 0 is current; optional previous key follows
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on every parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKeys: []crypto.PublicKey{publicKey},
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// WithPreviousKey registers the public key from before the last signing-key rotation.
// Call once at startup when JWT_PREVIOUS_PUBLIC_KEY is configured; drop the key from
// config (and restart) once all tokens signed with it have expired.
func (p *TokenProvider) WithPreviousKey(previous crypto.PublicKey) *TokenProvider {
	if previous != nil {
		p.publicKeys = append(p.publicKeys, previous)
	}
	return p
}

// IssueAccess issues a short-lived access JWT for the given session, user, and tenant.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(sessionID, userID, tenantID string) (token string, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:  tenantID,
		SessionID: sessionID,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT and returns the token, its jti
// (for rotation binding), and expiration time. Caller must store jti on the session.
func (p *TokenProvider) IssueRefresh(sessionID, userID, tenantID string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		TenantID:  tenantID,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// parse validates tokenString against each registered public key, newest first.
// Returns ErrExpiredToken when the token verified against a key but is past exp;
// ErrInvalidToken for every other failure.
func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	expired := false
	for _, pub := range p.publicKeys {
		key := pub
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
				return key, nil
			}
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
				return key, nil
			}
			return nil, ErrInvalidToken
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				expired = true
			}
			continue
		}
		if token.Valid {
			return nil
		}
	}
	if expired {
		return ErrExpiredToken
	}
	return ErrInvalidToken
}

func (p *TokenProvider) checkIssuerAudience(issuer string, audience jwt.ClaimStrings) error {
	if issuer != p.issuer {
		return ErrInvalidToken
	}
	for _, a := range audience {
		if a == p.audience {
			return nil
		}
	}
	return ErrInvalidToken
}

// ValidateRefresh parses and validates the refresh token (signature, exp, iss, aud).
// Returns sessionID, jti, userID, tenantID; ErrExpiredToken past TTL, ErrInvalidToken otherwise.
func (p *TokenProvider) ValidateRefresh(tokenString string) (sessionID, jti, userID, tenantID string, err error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return "", "", "", "", err
	}
	if err := p.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return "", "", "", "", err
	}
	return claims.SessionID, claims.ID, claims.Subject, claims.TenantID, nil
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
// Returns sessionID, userID, tenantID; ErrExpiredToken past TTL, ErrInvalidToken otherwise.
func (p *TokenProvider) ValidateAccess(tokenString string) (sessionID, userID, tenantID string, err error) {
	claims := &AccessClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return "", "", "", err
	}
	if err := p.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return "", "", "", err
	}
	return claims.SessionID, claims.Subject, claims.TenantID, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
