package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codePrefix     = "verify:code:"
	attemptsPrefix = "verify:attempts:"
	sendsPrefix    = "verify:sends:"
	codeDigits     = 6
)

var (
	ErrCodeInvalid     = errors.New("verification code not found, expired or wrong")
	ErrTooManyAttempts = errors.New("too many failed verification attempts, please try again later")
	ErrTooManySends    = errors.New("too many codes requested, please try again later")
)

type OTPOptions struct {
	TTL         time.Duration
	MaxAttempts int
	Lockout     time.Duration
	SendWindow  time.Duration
	MaxSends    int
}

// OTPStore keeps one pending code per subject. Subjects are opaque keys, never raw contacts.
type OTPStore struct {
	client *redis.Client
	opts   OTPOptions
}

func NewOTPStore(client *redis.Client, opts OTPOptions) *OTPStore {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Lockout <= 0 {
		opts.Lockout = 15 * time.Minute
	}
	if opts.SendWindow <= 0 {
		opts.SendWindow = time.Hour
	}
	if opts.MaxSends <= 0 {
		opts.MaxSends = 5
	}
	return &OTPStore{client: client, opts: opts}
}

// Generate replaces any pending code for subject with a fresh 6 digit one.
func (s *OTPStore) Generate(ctx context.Context, subject string) (string, error) {
	sendsKey := sendsPrefix + subject
	sends, err := s.client.Incr(ctx, sendsKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check send rate: %w", err)
	}
	// The window starts with the first send. A counter left without a TTL, e.g. by a failed
	// Expire, gets one here instead of blocking the contact forever.
	ttl, err := s.client.TTL(ctx, sendsKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check send window: %w", err)
	}
	if ttl < 0 {
		if err := s.client.Expire(ctx, sendsKey, s.opts.SendWindow).Err(); err != nil {
			return "", fmt.Errorf("failed to start send window: %w", err)
		}
	}
	if sends > int64(s.opts.MaxSends) {
		return "", ErrTooManySends
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, codePrefix+subject, code, s.opts.TTL)
	pipe.Del(ctx, attemptsPrefix+subject)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}

	return code, nil
}

// Verify consumes the pending code. A code can be confirmed once; every miss counts toward
// the lockout.
func (s *OTPStore) Verify(ctx context.Context, subject, code string) error {
	attemptsKey := attemptsPrefix + subject
	attempts, err := s.client.Get(ctx, attemptsKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to check attempts: %w", err)
	}
	if attempts >= s.opts.MaxAttempts {
		return ErrTooManyAttempts
	}

	codeKey := codePrefix + subject
	stored, err := s.client.Get(ctx, codeKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.incrementFailedAttempts(ctx, attemptsKey)
			return ErrCodeInvalid
		}
		return fmt.Errorf("failed to read verification code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.incrementFailedAttempts(ctx, attemptsKey)
		return ErrCodeInvalid
	}

	// Only the caller that actually deletes the key wins a concurrent confirm.
	deleted, err := s.client.Del(ctx, codeKey).Result()
	if err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	if deleted == 0 {
		return ErrCodeInvalid
	}

	s.client.Del(ctx, attemptsKey)
	return nil
}

func (s *OTPStore) incrementFailedAttempts(ctx context.Context, key string) {
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.opts.Lockout)
	_, _ = pipe.Exec(ctx)
}

func newCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
