package credential

import (
	"context"
	"log/slog"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/internal"
)

// RevocationPolicy decides what Verify does when the Revoker itself fails.
type RevocationPolicy int

const (
	// FailOpen logs the error and carries on as if the token were not revoked.
	FailOpen RevocationPolicy = iota
	// FailClosed rejects the token with KindRevocationCheckFailed.
	FailClosed
)

func (p RevocationPolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}

	return "fail-open"
}

type VerifierOptions struct {
	Keys             Keys
	Revoker          Revoker
	RevocationPolicy RevocationPolicy
	Clock            func() time.Time
	Logger           *slog.Logger
}

// Verifier is the single gate in front of protected resources.
type Verifier struct {
	keys    Keys
	revoker Revoker
	policy  RevocationPolicy
	now     func() time.Time
	lg      *slog.Logger
}

func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	if err := opts.Keys.Valid(); err != nil {
		return nil, err
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Verifier{
		keys:    opts.Keys,
		revoker: opts.Revoker,
		policy:  opts.RevocationPolicy,
		now:     opts.Clock,
		lg:      opts.Logger.With("subsystem", "credential-verifier"),
	}, nil
}

// VerifyOptions are the per-request expectations. Audience is enforced when
// set. The client IP is enforced when RequireClientIP is true or ClientIP is
// set.
type VerifyOptions struct {
	Audience        string
	RequireClientIP bool
	ClientIP        string
}

// Result is the outcome of Verify. Claims is only set when Valid is true;
// Kind and Reason only when it is false.
type Result struct {
	Valid  bool
	Claims *Claims
	Kind   botcha.Kind
	Reason string
}

func (v *Verifier) fail(err error) Result {
	kind := KindOf(err)
	Verifications.WithLabelValues(string(kind)).Inc()
	return Result{Kind: kind, Reason: err.Error()}
}

// Parse checks only the signature and expiry of a token of either type.
func (v *Verifier) Parse(encoded string) (*Claims, error) {
	return parse(v.keys, v.now, encoded)
}

// Verify checks an access token in a fixed order and stops at the first
// failure: signature and expiry, type, revocation, audience, client IP.
func (v *Verifier) Verify(ctx context.Context, encoded string, opts VerifyOptions) Result {
	lg := v.lg.With("token", internal.FastHash(encoded))

	claims, err := parse(v.keys, v.now, encoded)
	if err != nil {
		lg.Debug("token rejected", "err", err)
		return v.fail(err)
	}

	lg = lg.With("jti", claims.ID, "sub", claims.Subject)

	if claims.Type != TypeAccess {
		return v.fail(newError(botcha.KindCredentialTypeMismatch, ErrTypeMismatch, "wanted %s, got %s", TypeAccess, claims.Type))
	}

	if v.revoker != nil {
		revoked, err := v.revoker.IsRevoked(ctx, claims.ID)
		switch {
		case err != nil && v.policy == FailClosed:
			RevocationErrors.WithLabelValues(v.policy.String()).Inc()
			lg.Error("revocation check failed, rejecting token", "err", err, "kind", botcha.KindRevocationCheckFailed)
			return v.fail(newError(botcha.KindRevocationCheckFailed, ErrRevocationCheck, "%v", err))
		case err != nil:
			RevocationErrors.WithLabelValues(v.policy.String()).Inc()
			lg.Warn("revocation check failed, continuing", "err", err, "kind", botcha.KindRevocationCheckFailed)
		case revoked:
			return v.fail(newError(botcha.KindCredentialRevoked, ErrRevoked, "jti %s", claims.ID))
		}
	}

	if opts.Audience != "" {
		if got := claims.AudienceValue(); len(claims.Audience) != 1 || got != opts.Audience {
			return v.fail(newError(botcha.KindAudienceMismatch, ErrAudience, "wanted %q, got %q", opts.Audience, claims.Audience))
		}
	}

	if opts.RequireClientIP || opts.ClientIP != "" {
		if claims.ClientIP == "" || opts.ClientIP == "" || claims.ClientIP != opts.ClientIP {
			return v.fail(newError(botcha.KindClientIPMismatch, ErrClientIP, "wanted %q, got %q", opts.ClientIP, claims.ClientIP))
		}
	}

	Verifications.WithLabelValues("ok").Inc()
	return Result{Valid: true, Claims: claims}
}
