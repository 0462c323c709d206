package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TecharoHQ/botcha/lib/store"
)

// Revoker answers whether a token id has been revoked. Implementations may
// fail; what happens then is up to the Verifier's RevocationPolicy.
type Revoker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RevokerFunc adapts a function to Revoker.
type RevokerFunc func(ctx context.Context, jti string) (bool, error)

func (f RevokerFunc) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return f(ctx, jti)
}

type revocation struct {
	RevokedAt time.Time `json:"revokedAt"`
}

// RevocationList is a Revoker backed by a store. Entries live until the
// token they name would have expired anyway.
type RevocationList struct {
	json *store.JSON[revocation]
	now  func() time.Time
}

func NewRevocationList(backend store.Interface) *RevocationList {
	return &RevocationList{
		json: &store.JSON[revocation]{Underlying: backend, Prefix: "revoked:"},
		now:  time.Now,
	}
}

// Revoke marks jti as revoked until until. Revoking an already expired token
// is a no-op.
func (r *RevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	now := r.now()
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}

	if err := r.json.Set(ctx, jti, revocation{RevokedAt: now}, ttl); err != nil {
		return fmt.Errorf("can't revoke %s: %w", jti, err)
	}

	Revocations.Inc()
	return nil
}

func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if _, err := r.json.Get(ctx, jti); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}
