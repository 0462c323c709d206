package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/internal"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type IssuerOptions struct {
	Keys       Keys
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Revoker is consulted by Refresh. Refresh always fails closed.
	Revoker Revoker

	Clock  func() time.Time
	Logger *slog.Logger
}

// Issuer mints access and refresh tokens.
type Issuer struct {
	keys       Keys
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoker    Revoker
	now        func() time.Time
	lg         *slog.Logger
}

func NewIssuer(opts IssuerOptions) (*Issuer, error) {
	if err := opts.Keys.Valid(); err != nil {
		return nil, err
	}

	if opts.AccessTTL <= 0 {
		opts.AccessTTL = botcha.DefaultAccessTokenExpiration
	}

	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = botcha.DefaultRefreshTokenExpiration
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Issuer{
		keys:       opts.Keys,
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		revoker:    opts.Revoker,
		now:        opts.Clock,
		lg:         opts.Logger.With("subsystem", "credential-issuer"),
	}, nil
}

// IssueInput describes who a token is for. SolveTimeMs is dropped for
// signature provenance. Audience and ClientIP are only bound when set.
type IssueInput struct {
	Subject     string
	Provenance  Provenance
	SolveTimeMs *int64
	Audience    string
	ClientIP    string
	AppID       string
}

// Token is a signed token and the claims inside it.
type Token struct {
	Encoded   string
	Claims    *Claims
	ExpiresIn time.Duration
}

// Pair is what a successful verification hands back.
type Pair struct {
	Access  *Token
	Refresh *Token
}

func (i *Issuer) mint(typ Type, ttl time.Duration, claims *Claims) (*Token, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("can't generate token id: %w", err)
	}

	now := i.now().Truncate(time.Second)

	claims.Type = typ
	claims.ID = jti.String()
	claims.Issuer = i.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	encoded, err := i.keys.sign(claims)
	if err != nil {
		return nil, fmt.Errorf("can't sign %s token: %w", typ, err)
	}

	Issued.WithLabelValues(string(typ), string(claims.Provenance)).Inc()
	i.lg.Debug("minted token", "type", typ, "sub", claims.Subject, "jti", claims.ID, "token", internal.FastHash(encoded))

	return &Token{Encoded: encoded, Claims: claims, ExpiresIn: ttl}, nil
}

// IssueAccess mints a short lived access token.
func (i *Issuer) IssueAccess(ctx context.Context, in IssueInput) (*Token, error) {
	claims := &Claims{
		Provenance: in.Provenance,
		ClientIP:   in.ClientIP,
		AppID:      in.AppID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: in.Subject,
		},
	}

	if in.Provenance == ProvenanceChallenge && in.SolveTimeMs != nil {
		solveTime := *in.SolveTimeMs
		claims.SolveTimeMs = &solveTime
	}

	if in.Audience != "" {
		claims.Audience = jwt.ClaimStrings{in.Audience}
	}

	return i.mint(TypeAccess, i.accessTTL, claims)
}

// IssuePair mints an access token and a refresh token for the same subject.
// The refresh token carries no binding claims.
func (i *Issuer) IssuePair(ctx context.Context, in IssueInput) (*Pair, error) {
	access, err := i.IssueAccess(ctx, in)
	if err != nil {
		return nil, err
	}

	refresh, err := i.mint(TypeRefresh, i.refreshTTL, &Claims{
		Provenance: in.Provenance,
		AppID:      in.AppID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: in.Subject,
		},
	})
	if err != nil {
		return nil, err
	}

	return &Pair{Access: access, Refresh: refresh}, nil
}

// RefreshInput carries the bindings wanted on the new access token.
type RefreshInput struct {
	Audience string
	ClientIP string
}

// Refresh trades a valid refresh token for a new access token. Unlike the
// access gate, a failing revocation check rejects the refresh.
func (i *Issuer) Refresh(ctx context.Context, encoded string, in RefreshInput) (*Token, error) {
	claims, err := parse(i.keys, i.now, encoded)
	if err != nil {
		return nil, err
	}

	if claims.Type != TypeRefresh {
		return nil, newError(botcha.KindCredentialTypeMismatch, ErrTypeMismatch, "wanted %s, got %s", TypeRefresh, claims.Type)
	}

	if i.revoker != nil {
		revoked, err := i.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, newError(botcha.KindRevocationCheckFailed, ErrRevocationCheck, "%v", err)
		}

		if revoked {
			return nil, newError(botcha.KindCredentialRevoked, ErrRevoked, "jti %s", claims.ID)
		}
	}

	return i.IssueAccess(ctx, IssueInput{
		Subject:    claims.Subject,
		Provenance: claims.Provenance,
		Audience:   in.Audience,
		ClientIP:   in.ClientIP,
		AppID:      claims.AppID,
	})
}
