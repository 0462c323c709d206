// Package badge signs the small shareable envelopes that say "an agent was
// verified this way". They are not credentials and must never be used for
// authorization.
package badge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TecharoHQ/botcha"
)

var (
	ErrInvalid  = errors.New("badge: invalid token")
	ErrNoSecret = errors.New("badge: secret is empty")
	ErrNoMethod = errors.New("badge: payload has no method")
)

// Payload is what a badge attests to.
type Payload struct {
	Method      string    `json:"method"`
	SolveTimeMs *int64    `json:"solveTimeMs,omitempty"`
	VerifiedAt  time.Time `json:"verifiedAt"`
}

// Signer produces and checks badge tokens of the form
// <base64url(payload)>.<base64url(hmac-sha256(secret, first segment))>.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	return &Signer{secret: secret}, nil
}

func (s *Signer) mac(segment string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(segment))
	return h.Sum(nil)
}

func (s *Signer) Sign(p Payload) (string, error) {
	if p.Method == "" {
		return "", ErrNoMethod
	}

	p.VerifiedAt = p.VerifiedAt.UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("badge: can't encode payload: %w", err)
	}

	segment := base64.RawURLEncoding.EncodeToString(data)

	return segment + "." + base64.RawURLEncoding.EncodeToString(s.mac(segment)), nil
}

// Verify returns the payload of a token minted by this signer. Every failure
// is ErrInvalid, tagged with botcha.KindBadgeTokenInvalid.
//
// Both segments are decoded strictly: the padding bits of the last base64
// character must be zero, so every encoded token has exactly one spelling.
func (s *Signer) Verify(token string) (*Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, invalid("wanted 2 segments, got %d", len(parts))
	}

	mac, err := base64.RawURLEncoding.Strict().DecodeString(parts[1])
	if err != nil {
		return nil, invalid("can't decode mac: %v", err)
	}

	if !hmac.Equal(mac, s.mac(parts[0])) {
		return nil, invalid("mac mismatch")
	}

	data, err := base64.RawURLEncoding.Strict().DecodeString(parts[0])
	if err != nil {
		return nil, invalid("can't decode payload: %v", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, invalid("can't parse payload: %v", err)
	}

	return &p, nil
}

// Error carries botcha.KindBadgeTokenInvalid.
type Error struct {
	Err error
}

func (e *Error) Error() string     { return e.Err.Error() }
func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) Kind() botcha.Kind { return botcha.KindBadgeTokenInvalid }

func invalid(format string, args ...any) error {
	return &Error{Err: fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))}
}
