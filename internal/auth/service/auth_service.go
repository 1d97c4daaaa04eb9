package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	identitydomain "caresight/backend/internal/identity/domain"
	"caresight/backend/internal/metrics"
	otpdomain "caresight/backend/internal/otp/domain"
	otpservice "caresight/backend/internal/otp/service"
	"caresight/backend/internal/security"
	sessiondomain "caresight/backend/internal/session/domain"
)

// Sentinel errors for the auth service; handlers map them to HTTP codes.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("expired refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected; all sessions revoked")
)

// AuthResult holds the outcome of VerifyOTP or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	TenantID     string
	SessionID    string
}

// ChallengeService is the minimal OTP service needed by the auth service.
type ChallengeService interface {
	RequestChallenge(ctx context.Context, phone string) (*otpdomain.Challenge, error)
	Verify(ctx context.Context, phone, code string) (*otpservice.VerifiedIdentity, error)
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByPhone(ctx context.Context, phone string) (*identitydomain.User, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByUser(ctx context.Context, userID string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	RotateRefreshToken(ctx context.Context, sessionID, oldJti, newJti, newHash string) (bool, error)
}

// AuthService implements phone-OTP login, token refresh with rotation, and logout.
type AuthService struct {
	challenges  ChallengeService
	userRepo    UserRepo
	sessionRepo SessionRepo
	tokens      *security.TokenProvider
	refreshTTL  time.Duration
	log         zerolog.Logger
	nowF        func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	challenges ChallengeService,
	userRepo UserRepo,
	sessionRepo SessionRepo,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		challenges:  challenges,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		refreshTTL:  refreshTTL,
		log:         log,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// RequestOTP issues an OTP challenge for the phone. A challenge is issued even
// when the phone maps to no user, so the response does not reveal whether a
// phone is registered.
func (s *AuthService) RequestOTP(ctx context.Context, phone string) error {
	_, err := s.challenges.RequestChallenge(ctx, phone)
	return err
}

// VerifyOTP verifies the code, resolves the user by phone, creates a session,
// and returns an access/refresh token pair. A verified phone with no
// provisioned user fails with ErrInvalidCredentials; users are never
// auto-created here.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, code, ipAddress string) (*AuthResult, error) {
	ident, err := s.challenges.Verify(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByPhone(ctx, ident.Phone)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != identitydomain.UserStatusActive {
		s.log.Warn().Msg("auth: otp verified for phone with no active user")
		return nil, ErrInvalidCredentials
	}

	now := s.nowF()
	sessionID := uuid.New().String()
	refreshToken, jti, _, err := s.tokens.IssueRefresh(sessionID, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		TenantID:         user.TenantID,
		ExpiresAt:        now.Add(s.refreshTTL),
		IPAddress:        ipAddress,
		RefreshJti:       jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		UserID:       user.ID,
		TenantID:     user.TenantID,
		SessionID:    sessionID,
	}, nil
}

// Refresh validates the refresh token, rotates it, and returns a new token pair.
// Presenting a superseded jti on a live session means the token leaked and was
// replayed; every session of that user is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidRefreshToken
	}
	sessionID, jti, userID, tenantID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			metrics.TokenRefreshes.WithLabelValues("expired").Inc()
			return nil, ErrExpiredRefreshToken
		}
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	if sess == nil || !sess.Live(now) {
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != jti {
		metrics.TokenRefreshes.WithLabelValues("reuse").Inc()
		s.log.Warn().Str("user_id", userID).Msg("auth: refresh token reuse detected")
		_ = s.sessionRepo.RevokeAllByUser(ctx, userID)
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidRefreshToken
	}

	newRefresh, newJti, _, err := s.tokens.IssueRefresh(sessionID, userID, tenantID)
	if err != nil {
		return nil, err
	}
	rotated, err := s.sessionRepo.RotateRefreshToken(ctx, sessionID, jti, newJti, security.HashRefreshToken(newRefresh))
	if err != nil {
		return nil, err
	}
	if !rotated {
		// A concurrent refresh rotated first; this presentation is now stale.
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidRefreshToken
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sessionID, now)
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, userID, tenantID)
	if err != nil {
		return nil, err
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		UserID:       userID,
		TenantID:     tenantID,
		SessionID:    sessionID,
	}, nil
}

// Logout revokes the session behind the refresh token, or the bearer session
// sessionID if refreshToken is empty. Unknown or already dead credentials are
// a no-op; logout never fails the client.
func (s *AuthService) Logout(ctx context.Context, refreshToken, sessionID string) error {
	if refreshToken != "" {
		sid, _, _, _, err := s.tokens.ValidateRefresh(refreshToken)
		if err != nil {
			return nil
		}
		return s.sessionRepo.Revoke(ctx, sid)
	}
	if sessionID == "" {
		return nil
	}
	return s.sessionRepo.Revoke(ctx, sessionID)
}

// RevokeSession revokes a single session by id. Used by back-office tooling.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Revoke(ctx, sessionID)
}
