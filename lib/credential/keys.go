package credential

import (
	"crypto/ed25519"

	"github.com/golang-jwt/jwt/v5"
)

// Keys holds the token signing material. HS256Secret wins when both are set.
type Keys struct {
	HS256Secret       []byte
	ED25519PrivateKey ed25519.PrivateKey
}

func (k Keys) Valid() error {
	if len(k.HS256Secret) == 0 && len(k.ED25519PrivateKey) != ed25519.PrivateKeySize {
		return ErrNoKey
	}

	return nil
}

func (k Keys) method() jwt.SigningMethod {
	if len(k.HS256Secret) != 0 {
		return jwt.SigningMethodHS256
	}

	return jwt.SigningMethodEdDSA
}

func (k Keys) signingKey() any {
	if len(k.HS256Secret) != 0 {
		return k.HS256Secret
	}

	return k.ED25519PrivateKey
}

func (k Keys) verifyKey() any {
	if len(k.HS256Secret) != 0 {
		return k.HS256Secret
	}

	return k.ED25519PrivateKey.Public()
}

func (k Keys) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(k.method(), claims).SignedString(k.signingKey())
}
