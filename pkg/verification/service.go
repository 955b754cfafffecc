package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/security"
)

// Service runs the send/confirm flow: a code goes to the contact, and confirming it yields a
// short-lived token that identifies the reporter by a fingerprint of the contact.
type Service struct {
	store    *OTPStore
	senders  map[Channel]Sender
	cipher   *security.Cipher
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	log      *slog.Logger
}

func NewService(store *OTPStore, senders map[Channel]Sender, cipher *security.Cipher, tokens *auth.TokenManager, tokenTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		senders:  senders,
		cipher:   cipher,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		log:      log,
	}
}

type Sent struct {
	Channel   Channel   `json:"channel"`
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) Send(ctx context.Context, ch Channel, raw string) (Sent, error) {
	target, err := NormalizeTarget(ch, raw)
	if err != nil {
		return Sent{}, err
	}
	sender, ok := s.senders[ch]
	if !ok {
		return Sent{}, fmt.Errorf("%w: channel %s is not enabled", ErrInvalidTarget, ch)
	}

	code, err := s.store.Generate(ctx, s.subject(ch, target))
	if err != nil {
		return Sent{}, err
	}
	if err := sender.Send(ctx, target, code, s.store.opts.TTL); err != nil {
		return Sent{}, err
	}

	masked := MaskTarget(ch, target)
	s.log.InfoContext(ctx, "verification code sent", "channel", ch, "target", masked)
	return Sent{Channel: ch, Target: masked, ExpiresAt: time.Now().Add(s.store.opts.TTL)}, nil
}

type Confirmed struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) Confirm(ctx context.Context, ch Channel, raw, code string) (Confirmed, error) {
	target, err := NormalizeTarget(ch, raw)
	if err != nil {
		return Confirmed{}, err
	}

	ref := s.subject(ch, target)
	if err := s.store.Verify(ctx, ref, code); err != nil {
		return Confirmed{}, err
	}

	sealed, err := s.cipher.EncryptString(target)
	if err != nil {
		return Confirmed{}, fmt.Errorf("failed to seal contact: %w", err)
	}
	token, err := s.tokens.IssueVerification(ref, string(ch), sealed, s.tokenTTL)
	if err != nil {
		return Confirmed{}, err
	}

	s.log.InfoContext(ctx, "contact verified", "channel", ch, "target", MaskTarget(ch, target))
	return Confirmed{Token: token, ExpiresAt: time.Now().Add(s.tokenTTL)}, nil
}

// Contact recovers the verified contact from a verification token.
func (s *Service) Contact(claims *auth.VerificationClaims) (string, error) {
	return s.cipher.DecryptString(claims.ContactEnc)
}

type Session struct {
	Channel   Channel   `json:"channel"`
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session describes a verification token back to its holder, with the contact masked.
func (s *Service) Session(token string) (Session, error) {
	claims, err := s.tokens.ParseVerification(token)
	if err != nil {
		return Session{}, err
	}
	contact, err := s.Contact(claims)
	if err != nil {
		return Session{}, fmt.Errorf("%w: unreadable contact", auth.ErrInvalidToken)
	}

	ch := Channel(claims.Channel)
	out := Session{Channel: ch, Target: MaskTarget(ch, contact)}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (s *Service) subject(ch Channel, target string) string {
	return s.cipher.Fingerprint(string(ch) + ":" + target)
}
