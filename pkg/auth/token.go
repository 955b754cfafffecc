package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campus-issue-reporting/pkg/report"
)

const (
	audienceSession      = "session"
	audienceVerification = "verification"
	issuer               = "campus-issue-reporting"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the session token of a registered user.
type Claims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the identity the report core sees for this session.
func (c *Claims) Actor() report.Actor {
	switch report.ParseRole(c.Role) {
	case report.RoleStaff:
		return report.Staff(c.UserID)
	case report.RoleOfficer:
		return report.Officer(c.UserID, c.Department)
	case report.RoleCitizen:
		return report.Citizen(c.UserID)
	default:
		return report.Anonymous()
	}
}

// VerificationClaims prove that the bearer confirmed a one-time code sent to a contact.
// The contact itself is sealed; Ref is its keyed fingerprint.
type VerificationClaims struct {
	Ref        string `json:"ref"`
	Channel    string `json:"channel"`
	ContactEnc string `json:"contact_enc"`
	jwt.RegisteredClaims
}

func (c *VerificationClaims) Actor() report.Actor {
	return report.Citizen(c.Ref)
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

type User struct {
	ID         string
	Email      string
	Name       string
	Role       string
	Department string
}

func (m *TokenManager) Issue(u User) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:     u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Department: u.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{audienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return m.sign(claims)
}

func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims, audienceSession); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) IssueVerification(ref, channel, contactEnc string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := VerificationClaims{
		Ref:        ref,
		Channel:    channel,
		ContactEnc: contactEnc,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   ref,
			Audience:  jwt.ClaimStrings{audienceVerification},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return m.sign(claims)
}

func (m *TokenManager) ParseVerification(tokenString string) (*VerificationClaims, error) {
	claims := &VerificationClaims{}
	if err := m.parse(tokenString, claims, audienceVerification); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Ref) == "" {
		return nil, fmt.Errorf("%w: missing ref", ErrInvalidToken)
	}
	return claims, nil
}

func (m *TokenManager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
