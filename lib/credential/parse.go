package credential

import (
	"errors"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/golang-jwt/jwt/v5"
)

// parse checks the signature and the built-in time claims and nothing else.
func parse(keys Keys, now func() time.Time, encoded string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(encoded, &Claims{}, func(token *jwt.Token) (any, error) {
		return keys.verifyKey(), nil
	},
		jwt.WithValidMethods([]string{keys.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newError(botcha.KindCredentialExpired, ErrExpired, "%v", err)
		}

		return nil, newError(botcha.KindCredentialMalformed, ErrMalformed, "%v", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, newError(botcha.KindCredentialMalformed, ErrMalformed, "invalid token claims type")
	}

	if claims.ID == "" || claims.Type == "" {
		return nil, newError(botcha.KindCredentialMalformed, ErrMalformed, "missing jti or type claim")
	}

	return claims, nil
}
