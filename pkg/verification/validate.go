package verification

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

func (c Channel) IsValid() bool {
	return c == ChannelPhone || c == ChannelEmail
}

var (
	ErrInvalidTarget = errors.New("invalid contact")
	ErrInvalidID     = errors.New("invalid identity document number")
)

var (
	phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	validate     = validator.New()
)

// NormalizeTarget canonicalises a phone number or email address so that the same contact
// always maps to the same subject.
func NormalizeTarget(ch Channel, raw string) (string, error) {
	switch ch {
	case ChannelPhone:
		p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
		p = strings.TrimPrefix(p, "+91")
		if len(p) == 11 && p[0] == '0' {
			p = p[1:]
		}
		if !phonePattern.MatchString(p) {
			return "", fmt.Errorf("%w: phone must be a 10 digit mobile number", ErrInvalidTarget)
		}
		return p, nil
	case ChannelEmail:
		e := strings.ToLower(strings.TrimSpace(raw))
		if err := validate.Var(e, "required,email,max=254"); err != nil {
			return "", fmt.Errorf("%w: malformed email address", ErrInvalidTarget)
		}
		return e, nil
	default:
		return "", fmt.Errorf("%w: unknown channel %q", ErrInvalidTarget, ch)
	}
}

type IDType string

const (
	IDAadhaar  IDType = "aadhaar"
	IDPAN      IDType = "pan"
	IDPassport IDType = "passport"
	IDVisa     IDType = "visa"
)

var idPatterns = map[IDType]*regexp.Regexp{
	IDAadhaar:  regexp.MustCompile(`^\d{4}\s\d{4}\s\d{4}$|^\d{12}$`),
	IDPAN:      regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`),
	IDPassport: regexp.MustCompile(`^[A-Z][0-9]{7}$`),
	IDVisa:     regexp.MustCompile(`^[A-Z0-9]{8,12}$`),
}

// ValidateID checks the shape of an identity document number. It does not contact any
// registry; a match only means the number is well formed.
func ValidateID(t IDType, number string) (string, error) {
	pattern, ok := idPatterns[t]
	if !ok {
		return "", fmt.Errorf("%w: unknown document type %q", ErrInvalidID, t)
	}

	n := strings.TrimSpace(number)
	if t != IDAadhaar {
		n = strings.ToUpper(n)
	}
	if !pattern.MatchString(n) {
		return "", fmt.Errorf("%w: %s number is malformed", ErrInvalidID, t)
	}
	if t == IDAadhaar {
		n = strings.ReplaceAll(n, " ", "")
	}
	return n, nil
}

// MaskTarget hides most of a contact for logs and responses.
func MaskTarget(ch Channel, target string) string {
	switch ch {
	case ChannelPhone:
		if len(target) > 4 {
			return strings.Repeat("*", len(target)-4) + target[len(target)-4:]
		}
	case ChannelEmail:
		if at := strings.IndexByte(target, '@'); at > 1 {
			return target[:1] + strings.Repeat("*", at-1) + target[at:]
		}
	}
	return strings.Repeat("*", len(target))
}
