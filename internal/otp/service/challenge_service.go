package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"caresight/backend/internal/devotp"
	"caresight/backend/internal/metrics"
	"caresight/backend/internal/otp/domain"
	"caresight/backend/internal/security"
	"caresight/backend/internal/sms"
)

// Sentinel errors for the OTP layer; handlers map them to HTTP statuses.
var (
	ErrInvalidPhoneFormat       = errors.New("invalid phone number format")
	ErrNoActiveChallenge        = errors.New("no active challenge for this phone")
	ErrCodeMismatch             = errors.New("code does not match")
	ErrAttemptsExhausted        = errors.New("verification attempts exhausted; request a new code")
	ErrChallengeAlreadyConsumed = errors.New("challenge already consumed")
)

var phonePattern = regexp.MustCompile(`^\+?\d{9,15}$`)

// smsDispatchTimeout bounds a single async SMS dispatch, retries included.
const smsDispatchTimeout = 30 * time.Second

// VerifiedIdentity is the proof of phone possession produced by a successful
// verification, handed to the credential issuer.
type VerifiedIdentity struct {
	Phone      string
	VerifiedAt time.Time
}

// ChallengeRepo is the minimal challenge repository needed by the service.
type ChallengeRepo interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Challenge, error)
	Replace(ctx context.Context, c *domain.Challenge) error
	DecrementAttempts(ctx context.Context, id string) (int, error)
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	DeleteByPhone(ctx context.Context, phone string) error
}

// ChallengeService issues and verifies OTP challenges. Operations for the same
// phone identity are serialized with a keyed lock so the attempt-budget
// decrement and consumption marking stay atomic under concurrent requests.
type ChallengeService struct {
	repo        ChallengeRepo
	hasher      *security.Hasher
	notifier    sms.Notifier  // nil when dev OTP mode handles delivery
	devStore    devotp.Store  // nil unless dev OTP mode is enabled
	codeLength  int
	ttl         time.Duration
	maxAttempts int
	locks       *keyedMutex
	log         zerolog.Logger
	nowF        func() time.Time
}

// NewChallengeService returns a ChallengeService with the given dependencies.
// notifier may be nil when devStore is set (dev OTP mode).
func NewChallengeService(
	repo ChallengeRepo,
	hasher *security.Hasher,
	notifier sms.Notifier,
	devStore devotp.Store,
	codeLength int,
	ttl time.Duration,
	maxAttempts int,
	log zerolog.Logger,
) *ChallengeService {
	return &ChallengeService{
		repo:        repo,
		hasher:      hasher,
		notifier:    notifier,
		devStore:    devStore,
		codeLength:  codeLength,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		locks:       newKeyedMutex(),
		log:         log,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// NormalizePhone strips spaces and dashes and validates the E.164-like shape
// (optional leading +, 9–15 digits). Returns ErrInvalidPhoneFormat on failure.
func NormalizePhone(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if !phonePattern.MatchString(s) {
		return "", ErrInvalidPhoneFormat
	}
	return s, nil
}

// RequestChallenge validates the phone, generates a fresh code, and stores a new
// challenge for the phone, invalidating any prior one. The code is dispatched to
// the SMS gateway asynchronously (best effort); in dev OTP mode it goes to the
// dev store instead. The returned challenge carries only the code hash.
func (s *ChallengeService) RequestChallenge(ctx context.Context, rawPhone string) (*domain.Challenge, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(phone)
	defer s.locks.Unlock(phone)

	code, err := security.GenerateNumericCode(s.codeLength)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash([]byte(code))
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	c := &domain.Challenge{
		ID:                uuid.New().String(),
		Phone:             phone,
		CodeHash:          hash,
		AttemptsRemaining: s.maxAttempts,
		ExpiresAt:         now.Add(s.ttl),
		CreatedAt:         now,
	}
	if err := s.repo.Replace(ctx, c); err != nil {
		return nil, err
	}
	metrics.OTPChallengesIssued.Inc()

	if s.devStore != nil {
		s.devStore.Put(ctx, phone, code, c.ExpiresAt)
	}
	if s.notifier != nil {
		s.dispatchAsync(phone, code)
	}
	return c, nil
}

// dispatchAsync sends the code without blocking the caller. Failures are logged;
// the challenge stays valid so the user can retry delivery by reissuing.
func (s *ChallengeService) dispatchAsync(phone, code string) {
	log := s.log
	notifier := s.notifier
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), smsDispatchTimeout)
		defer cancel()
		if err := notifier.SendCode(ctx, phone, code); err != nil {
			log.Error().Err(err).Msg("otp: sms dispatch failed")
		}
	}()
}

// Verify checks code against the live challenge for the phone. On success the
// challenge is consumed and a VerifiedIdentity is returned; a consumed challenge
// can never verify again. Wrong codes burn the attempt budget; the call that
// burns the last attempt fails with ErrAttemptsExhausted, as does every call
// after, until a new challenge is requested.
func (s *ChallengeService) Verify(ctx context.Context, rawPhone, code string) (*VerifiedIdentity, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		metrics.OTPVerifications.WithLabelValues("invalid_phone").Inc()
		return nil, err
	}

	s.locks.Lock(phone)
	defer s.locks.Unlock(phone)

	c, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	if c == nil || !now.Before(c.ExpiresAt) {
		metrics.OTPVerifications.WithLabelValues("no_active_challenge").Inc()
		return nil, ErrNoActiveChallenge
	}
	if c.ConsumedAt != nil {
		metrics.OTPVerifications.WithLabelValues("already_consumed").Inc()
		return nil, ErrChallengeAlreadyConsumed
	}
	if c.AttemptsRemaining <= 0 {
		metrics.OTPVerifications.WithLabelValues("attempts_exhausted").Inc()
		return nil, ErrAttemptsExhausted
	}
	if s.hasher.Compare(c.CodeHash, []byte(code)) != nil {
		remaining, err := s.repo.DecrementAttempts(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if remaining <= 0 {
			metrics.OTPVerifications.WithLabelValues("attempts_exhausted").Inc()
			return nil, ErrAttemptsExhausted
		}
		metrics.OTPVerifications.WithLabelValues("code_mismatch").Inc()
		return nil, ErrCodeMismatch
	}
	if err := s.repo.MarkConsumed(ctx, c.ID, now); err != nil {
		return nil, err
	}
	metrics.OTPVerifications.WithLabelValues("ok").Inc()
	return &VerifiedIdentity{Phone: phone, VerifiedAt: now}, nil
}
