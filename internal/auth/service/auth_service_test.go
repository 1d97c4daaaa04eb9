package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	identitydomain "caresight/backend/internal/identity/domain"
	otpdomain "caresight/backend/internal/otp/domain"
	otpservice "caresight/backend/internal/otp/service"
	"caresight/backend/internal/security"
	sessiondomain "caresight/backend/internal/session/domain"
)

// memChallenges verifies against a fixed code, no budget accounting.
type memChallenges struct {
	mu       sync.Mutex
	code     map[string]string // phone -> live code
	consumed map[string]bool
}

func newMemChallenges() *memChallenges {
	return &memChallenges{code: make(map[string]string), consumed: make(map[string]bool)}
}

func (m *memChallenges) issue(phone, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.code[phone] = code
	m.consumed[phone] = false
}

func (m *memChallenges) RequestChallenge(ctx context.Context, phone string) (*otpdomain.Challenge, error) {
	m.issue(phone, "123456")
	return &otpdomain.Challenge{Phone: phone}, nil
}

func (m *memChallenges) Verify(ctx context.Context, phone, code string) (*otpservice.VerifiedIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want, ok := m.code[phone]
	if !ok {
		return nil, otpservice.ErrNoActiveChallenge
	}
	if m.consumed[phone] {
		return nil, otpservice.ErrChallengeAlreadyConsumed
	}
	if code != want {
		return nil, otpservice.ErrCodeMismatch
	}
	m.consumed[phone] = true
	return &otpservice.VerifiedIdentity{Phone: phone, VerifiedAt: time.Now().UTC()}, nil
}

type memUserRepo struct {
	mu      sync.Mutex
	byPhone map[string]*identitydomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byPhone: make(map[string]*identitydomain.User)}
}

func (r *memUserRepo) add(u *identitydomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPhone[u.Phone] = u
}

func (r *memUserRepo) GetByPhone(ctx context.Context, phone string) (*identitydomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byPhone[phone]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type memSessionRepo struct {
	mu   sync.Mutex
	byID map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byID: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok && s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range r.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			t := now
			s.RevokedAt = &t
		}
	}
	return nil
}

func (r *memSessionRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		t := at
		s.LastSeenAt = &t
	}
	return nil
}

func (r *memSessionRepo) RotateRefreshToken(ctx context.Context, sessionID, oldJti, newJti, newHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok || s.RevokedAt != nil || s.RefreshJti != oldJti {
		return false, nil
	}
	s.RefreshJti = newJti
	s.RefreshTokenHash = newHash
	return true, nil
}

const (
	authTestPhone  = "+15550001111"
	authTestTenant = "tenant-1"
)

func newTestAuth(t *testing.T) (*AuthService, *memChallenges, *memUserRepo, *memSessionRepo) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("token provider: %v", err)
	}
	ch := newMemChallenges()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	users.add(&identitydomain.User{
		ID:       "user-1",
		TenantID: authTestTenant,
		Phone:    authTestPhone,
		Status:   identitydomain.UserStatusActive,
	})
	svc := NewAuthService(ch, users, sessions, tokens, 24*time.Hour, zerolog.Nop())
	return svc, ch, users, sessions
}

func TestVerifyOTP_IssuesTokenPair(t *testing.T) {
	svc, ch, _, sessions := newTestAuth(t)
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	res, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "10.0.0.1")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("missing tokens")
	}
	if res.TenantID != authTestTenant {
		t.Errorf("tenant = %q, want %q", res.TenantID, authTestTenant)
	}
	sess, _ := sessions.GetByID(ctx, res.SessionID)
	if sess == nil {
		t.Fatal("session not persisted")
	}
	if sess.RefreshTokenHash == "" || sess.RefreshJti == "" {
		t.Error("session missing refresh rotation state")
	}
	if sess.IPAddress != "10.0.0.1" {
		t.Errorf("ip = %q", sess.IPAddress)
	}
}

func TestVerifyOTP_UnknownPhoneFailsClosed(t *testing.T) {
	svc, ch, _, sessions := newTestAuth(t)
	ctx := context.Background()

	const stranger = "+15559998888"
	ch.issue(stranger, "123456")
	_, err := svc.VerifyOTP(ctx, stranger, "123456", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	sessions.mu.Lock()
	n := len(sessions.byID)
	sessions.mu.Unlock()
	if n != 0 {
		t.Errorf("sessions created for unknown phone: %d", n)
	}
}

func TestVerifyOTP_DisabledUser(t *testing.T) {
	svc, ch, users, _ := newTestAuth(t)
	users.add(&identitydomain.User{
		ID:       "user-2",
		TenantID: authTestTenant,
		Phone:    "+15552223333",
		Status:   identitydomain.UserStatusDisabled,
	})
	ch.issue("+15552223333", "123456")
	if _, err := svc.VerifyOTP(context.Background(), "+15552223333", "123456", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyOTP_WrongCodePassesThrough(t *testing.T) {
	svc, ch, _, _ := newTestAuth(t)
	ch.issue(authTestPhone, "123456")
	if _, err := svc.VerifyOTP(context.Background(), authTestPhone, "654321", ""); !errors.Is(err, otpservice.ErrCodeMismatch) {
		t.Fatalf("want ErrCodeMismatch, got %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, ch, _, sessions := newTestAuth(t)
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	first, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh token not rotated")
	}
	if second.SessionID != first.SessionID {
		t.Error("refresh changed session id")
	}

	// The superseded token no longer matches the stored jti: reuse.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("want ErrRefreshTokenReuse, got %v", err)
	}
	// Reuse detection revokes everything, including the rotated session.
	sess, _ := sessions.GetByID(ctx, first.SessionID)
	if sess.RevokedAt == nil {
		t.Error("session not revoked after reuse detection")
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("rotated token on revoked session: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	svc, _, _, _ := newTestAuth(t)
	if _, err := svc.Refresh(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("want ErrInvalidRefreshToken, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("empty token: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	tokens, err := security.NewTestTokenProviderTTL(time.Minute, -time.Minute)
	if err != nil {
		t.Fatalf("token provider: %v", err)
	}
	ch := newMemChallenges()
	users := newMemUserRepo()
	users.add(&identitydomain.User{
		ID:       "user-1",
		TenantID: authTestTenant,
		Phone:    authTestPhone,
		Status:   identitydomain.UserStatusActive,
	})
	svc := NewAuthService(ch, users, newMemSessionRepo(), tokens, 24*time.Hour, zerolog.Nop())
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	res, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if _, err := svc.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrExpiredRefreshToken) {
		t.Fatalf("want ErrExpiredRefreshToken, got %v", err)
	}
}

func TestRefresh_RevokedSession(t *testing.T) {
	svc, ch, _, sessions := newTestAuth(t)
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	res, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if err := sessions.Revoke(ctx, res.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	svc, ch, _, _ := newTestAuth(t)
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	res, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, res.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, ErrInvalidRefreshToken) && !errors.Is(err, ErrRefreshTokenReuse) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes > 1 {
		t.Errorf("refresh succeeded %d times for one presentation", successes)
	}
}

func TestLogout(t *testing.T) {
	svc, ch, _, sessions := newTestAuth(t)
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	res, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if err := svc.Logout(ctx, res.RefreshToken, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	sess, _ := sessions.GetByID(ctx, res.SessionID)
	if sess.RevokedAt == nil {
		t.Error("session still live after logout")
	}
	// Logging out again, or with garbage, stays a no-op.
	if err := svc.Logout(ctx, "garbage", ""); err != nil {
		t.Errorf("Logout with bad token: %v", err)
	}
	if err := svc.Logout(ctx, "", ""); err != nil {
		t.Errorf("Logout with nothing: %v", err)
	}
}

func TestSessionValidator(t *testing.T) {
	svc, ch, _, sessions := newTestAuth(t)
	ctx := context.Background()

	ch.issue(authTestPhone, "123456")
	res, err := svc.VerifyOTP(ctx, authTestPhone, "123456", "")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	validator := NewSessionValidator(svc.tokens, sessions)
	ident, err := validator.ValidateAccess(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if ident.UserID != "user-1" || ident.TenantID != authTestTenant || ident.SessionID != res.SessionID {
		t.Errorf("identity = %+v", ident)
	}

	if _, err := validator.ValidateAccess(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("garbage token: want ErrTokenInvalid, got %v", err)
	}

	if err := sessions.Revoke(ctx, res.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := validator.ValidateAccess(ctx, res.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("revoked session: want ErrSessionRevoked, got %v", err)
	}
}

func TestSessionValidator_ExpiredToken(t *testing.T) {
	tokens, err := security.NewTestTokenProviderTTL(-time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("token provider: %v", err)
	}
	sessions := newMemSessionRepo()
	now := time.Now().UTC()
	_ = sessions.Create(context.Background(), &sessiondomain.Session{
		ID: "sess-1", UserID: "user-1", TenantID: authTestTenant,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	access, _, _, err := tokens.IssueAccess("sess-1", "user-1", authTestTenant)
	if err != nil {
		t.Fatal(err)
	}
	validator := NewSessionValidator(tokens, sessions)
	if _, err := validator.ValidateAccess(context.Background(), access); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}
