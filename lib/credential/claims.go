// Package credential mints and checks the bearer tokens handed out after a
// caller proves it is an agent.
package credential

import (
	"github.com/golang-jwt/jwt/v5"
)

// Type tells access and refresh tokens apart. The values are what ends up in
// the "type" claim.
type Type string

const (
	TypeAccess  Type = "botcha-verified"
	TypeRefresh Type = "botcha-refresh"
)

// Provenance records how the caller proved itself.
type Provenance string

const (
	ProvenanceChallenge Provenance = "challenge"
	ProvenanceSignature Provenance = "signature"
)

// Claims is the claim set of every BOTCHA token. Subject is the challenge id
// or the agent identity, ID is the jti used for revocation.
type Claims struct {
	Type        Type       `json:"type"`
	Provenance  Provenance `json:"provenance,omitempty"`
	SolveTimeMs *int64     `json:"solveTime,omitempty"`
	ClientIP    string     `json:"client_ip,omitempty"`
	AppID       string     `json:"app_id,omitempty"`

	jwt.RegisteredClaims
}

// AudienceValue returns the bound audience, or "" when the token has none.
func (c *Claims) AudienceValue() string {
	if len(c.Audience) == 0 {
		return ""
	}

	return c.Audience[0]
}
