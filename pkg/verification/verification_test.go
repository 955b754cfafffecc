package verification

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/security"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client, func() {
		client.Close()
		mr.Close()
	}
}

type capturingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *capturingSender) Send(_ context.Context, target, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[target] = code
	return nil
}

func (s *capturingSender) last(target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[target]
}

type fakeDialer struct {
	sent []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return nil
}

// ----------------------------------------------------------------------------
// OTP store
// ----------------------------------------------------------------------------

func TestOTPStore_GenerateAndVerify(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{})

	code, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Regexp(t, `^\d{6}$`, code)

	require.NoError(t, store.Verify(ctx, "subject-1", code))

	// Codes are single use.
	assert.ErrorIs(t, store.Verify(ctx, "subject-1", code), ErrCodeInvalid)
}

func TestOTPStore_NewCodeReplacesOld(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{})

	first, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)
	second, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, store.Verify(ctx, "subject-1", first), ErrCodeInvalid)
	}
	require.NoError(t, store.Verify(ctx, "subject-1", second))
}

func TestOTPStore_Expiry(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{TTL: 5 * time.Minute})

	code, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)

	mr.FastForward(5*time.Minute + time.Second)
	assert.ErrorIs(t, store.Verify(ctx, "subject-1", code), ErrCodeInvalid)
}

func TestOTPStore_AttemptLockout(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{MaxAttempts: 3, Lockout: time.Minute})

	code, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, store.Verify(ctx, "subject-1", wrong), ErrCodeInvalid)
	}
	// The right code no longer helps while locked out.
	assert.ErrorIs(t, store.Verify(ctx, "subject-1", code), ErrTooManyAttempts)

	mr.FastForward(time.Minute + time.Second)
	require.NoError(t, store.Verify(ctx, "subject-1", code))
}

func TestOTPStore_SendRateLimit(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{MaxSends: 2, SendWindow: time.Hour})

	_, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)
	_, err = store.Generate(ctx, "subject-1")
	require.NoError(t, err)
	_, err = store.Generate(ctx, "subject-1")
	assert.ErrorIs(t, err, ErrTooManySends)

	// Other subjects have their own budget.
	_, err = store.Generate(ctx, "subject-2")
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)
	_, err = store.Generate(ctx, "subject-1")
	require.NoError(t, err)
}

func TestOTPStore_SendCounterAlwaysExpires(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{MaxSends: 2, SendWindow: time.Hour})

	_, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(sendsPrefix+"subject-1"))

	// A counter that lost its TTL is over the limit but must not stay that way.
	require.NoError(t, mr.Set(sendsPrefix+"subject-2", "7"))
	_, err = store.Generate(ctx, "subject-2")
	assert.ErrorIs(t, err, ErrTooManySends)
	assert.Equal(t, time.Hour, mr.TTL(sendsPrefix+"subject-2"))

	mr.FastForward(time.Hour + time.Second)
	_, err = store.Generate(ctx, "subject-2")
	require.NoError(t, err)
}

func TestOTPStore_ConcurrentConfirmSucceedsOnce(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	store := NewOTPStore(client, OTPOptions{})

	code, err := store.Generate(ctx, "subject-1")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Verify(ctx, "subject-1", code) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

// ----------------------------------------------------------------------------
// Validation
// ----------------------------------------------------------------------------

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		raw     string
		want    string
		wantErr bool
	}{
		{"plain mobile", ChannelPhone, "9876543210", "9876543210", false},
		{"country code and spaces", ChannelPhone, "+91 98765-43210", "9876543210", false},
		{"trunk prefix", ChannelPhone, "09876543210", "9876543210", false},
		{"landline start digit", ChannelPhone, "1234567890", "", true},
		{"too short", ChannelPhone, "98765", "", true},
		{"email lowercased", ChannelEmail, "  Student@Campus.EDU ", "student@campus.edu", false},
		{"bad email", ChannelEmail, "not-an-email", "", true},
		{"unknown channel", Channel("fax"), "123", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeTarget(tc.channel, tc.raw)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		idType  IDType
		number  string
		want    string
		wantErr bool
	}{
		{IDAadhaar, "1234 5678 9012", "123456789012", false},
		{IDAadhaar, "123456789012", "123456789012", false},
		{IDAadhaar, "1234-5678-9012", "", true},
		{IDPAN, "abcde1234f", "ABCDE1234F", false},
		{IDPAN, "ABCD12345F", "", true},
		{IDPassport, "K1234567", "K1234567", false},
		{IDPassport, "K123456", "", true},
		{IDVisa, "ab12cd34", "AB12CD34", false},
		{IDVisa, "AB12", "", true},
		{IDType("library_card"), "X", "", true},
	}

	for _, tc := range tests {
		t.Run(string(tc.idType)+"/"+tc.number, func(t *testing.T) {
			got, err := ValidateID(tc.idType, tc.number)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMaskTarget(t *testing.T) {
	assert.Equal(t, "******3210", MaskTarget(ChannelPhone, "9876543210"))
	assert.Equal(t, "s******@campus.edu", MaskTarget(ChannelEmail, "student@campus.edu"))
	assert.Equal(t, "***", MaskTarget(ChannelEmail, "a@b"))
}

// ----------------------------------------------------------------------------
// Senders
// ----------------------------------------------------------------------------

func TestEmailSender_Send(t *testing.T) {
	d := &fakeDialer{}
	s := &EmailSender{from: "noreply@campus.edu", name: "Campus Reports", dialer: d}

	require.NoError(t, s.Send(context.Background(), "student@campus.edu", "123456", 5*time.Minute))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"student@campus.edu"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Your verification code"}, d.sent[0].GetHeader("Subject"))
}

// ----------------------------------------------------------------------------
// Service
// ----------------------------------------------------------------------------

func newTestService(t *testing.T, client *redis.Client) (*Service, *capturingSender, *auth.TokenManager) {
	t.Helper()
	cipher, err := security.NewCipher("verification-test-secret")
	require.NoError(t, err)

	sender := &capturingSender{}
	tokens := auth.NewTokenManager("token-secret", time.Hour)
	svc := NewService(
		NewOTPStore(client, OTPOptions{}),
		map[Channel]Sender{ChannelPhone: sender, ChannelEmail: sender},
		cipher,
		tokens,
		30*time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, sender, tokens
}

func TestService_SendAndConfirm(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	svc, sender, tokens := newTestService(t, client)

	sent, err := svc.Send(ctx, ChannelPhone, "+91 98765 43210")
	require.NoError(t, err)
	assert.Equal(t, "******3210", sent.Target)

	code := sender.last("9876543210")
	require.NotEmpty(t, code)

	// A differently formatted spelling of the same number confirms the same code.
	confirmed, err := svc.Confirm(ctx, ChannelPhone, "09876543210", code)
	require.NoError(t, err)

	claims, err := tokens.ParseVerification(confirmed.Token)
	require.NoError(t, err)
	assert.Equal(t, "phone", claims.Channel)
	assert.Equal(t, report.RoleCitizen, claims.Actor().Role)
	assert.NotContains(t, claims.Ref, "9876543210")
	assert.NotContains(t, claims.ContactEnc, "9876543210")

	contact, err := svc.Contact(claims)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", contact)
}

func TestService_SameContactSameRef(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	svc, sender, tokens := newTestService(t, client)

	refs := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		_, err := svc.Send(ctx, ChannelEmail, "student@campus.edu")
		require.NoError(t, err)
		confirmed, err := svc.Confirm(ctx, ChannelEmail, "Student@campus.edu", sender.last("student@campus.edu"))
		require.NoError(t, err)
		claims, err := tokens.ParseVerification(confirmed.Token)
		require.NoError(t, err)
		refs = append(refs, claims.Ref)
	}
	assert.Equal(t, refs[0], refs[1])
}

func TestService_Rejects(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	svc, _, _ := newTestService(t, client)

	_, err := svc.Send(ctx, ChannelPhone, "12345")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = svc.Confirm(ctx, ChannelEmail, "student@campus.edu", "123456")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	svc.senders = map[Channel]Sender{}
	_, err = svc.Send(ctx, ChannelEmail, "student@campus.edu")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
