package lib

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/lib/badge"
	"github.com/TecharoHQ/botcha/lib/challenge"
	"github.com/TecharoHQ/botcha/lib/config"
	"github.com/TecharoHQ/botcha/lib/credential"
	"github.com/TecharoHQ/botcha/lib/store"
	"github.com/TecharoHQ/botcha/lib/webbotauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	// challenge implementations
	_ "github.com/TecharoHQ/botcha/lib/challenge/speed"
	_ "github.com/TecharoHQ/botcha/lib/challenge/standard"
)

var (
	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_request_failures_total",
		Help: "The total number of API requests rejected, by failure kind",
	}, []string{"kind"})

	badgesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_badges_issued",
		Help: "The total number of badges signed",
	}, []string{"method"})
)

var ErrUnknownStoreBackend = errors.New("lib: unknown store backend")

type Options struct {
	// Config is the parsed configuration file. Nil means config.Default().
	Config *config.Config

	// Keys signs credentials. A random ed25519 key is generated when empty.
	Keys credential.Keys

	// BadgeSecret signs badges. A random secret is generated when empty.
	BadgeSecret []byte

	// Backend overrides the store named in Config.
	Backend store.Interface

	// HTTPClient fetches agent key directories.
	HTTPClient *http.Client

	Clock  func() time.Time
	Logger *slog.Logger
}

type Server struct {
	mux         *http.ServeMux
	backend     store.Interface
	challenges  *challenge.Store
	issuer      *credential.Issuer
	verifier    *credential.Verifier
	revocations *credential.RevocationList
	agents      *webbotauth.Verifier
	badges      *badge.Signer
	now         func() time.Time
	lg          *slog.Logger
}

// New wires every verification component together. The challenge sweeper
// runs until ctx is cancelled.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Keys.HS256Secret == nil && opts.Keys.ED25519PrivateKey == nil {
		opts.Logger.Debug("opts.Keys not set, generating a new ed25519 key")
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("lib: can't generate private key: %w", err)
		}
		opts.Keys.ED25519PrivateKey = priv
	}

	if len(opts.BadgeSecret) == 0 {
		opts.Logger.Debug("opts.BadgeSecret not set, generating a new one")
		opts.BadgeSecret = make([]byte, 32)
		if _, err := rand.Read(opts.BadgeSecret); err != nil {
			return nil, fmt.Errorf("lib: can't generate badge secret: %w", err)
		}
	}

	backend := opts.Backend
	if backend == nil {
		fac, ok := store.Get(cfg.Store.Backend)
		if !ok {
			return nil, fmt.Errorf("%w: %q, want one of %s", ErrUnknownStoreBackend, cfg.Store.Backend, strings.Join(store.Methods(), ", "))
		}

		var err error
		backend, err = fac.Build(ctx, cfg.Store.Parameters)
		if err != nil {
			return nil, fmt.Errorf("lib: can't build %s store: %w", cfg.Store.Backend, err)
		}
	}

	revocations := credential.NewRevocationList(backend)

	issuer, err := credential.NewIssuer(credential.IssuerOptions{
		Keys:       opts.Keys,
		Issuer:     cfg.Credentials.Issuer,
		AccessTTL:  cfg.Credentials.AccessTTL,
		RefreshTTL: cfg.Credentials.RefreshTTL,
		Revoker:    revocations,
		Clock:      opts.Clock,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("lib: can't create credential issuer: %w", err)
	}

	revocationPolicy := credential.FailOpen
	if !cfg.Credentials.FailOpenOnRevocationError {
		revocationPolicy = credential.FailClosed
	}

	verifier, err := credential.NewVerifier(credential.VerifierOptions{
		Keys:             opts.Keys,
		Revoker:          revocations,
		RevocationPolicy: revocationPolicy,
		Clock:            opts.Clock,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("lib: can't create credential verifier: %w", err)
	}

	registry, err := webbotauth.NewRegistry(cfg.WebBotAuth.TrustedProviders)
	if err != nil {
		return nil, fmt.Errorf("lib: can't load trusted providers: %w", err)
	}

	badges, err := badge.NewSigner(opts.BadgeSecret)
	if err != nil {
		return nil, fmt.Errorf("lib: can't create badge signer: %w", err)
	}

	result := &Server{
		backend: backend,
		challenges: challenge.NewStore(backend, challenge.StoreOptions{
			Clock:     opts.Clock,
			Retention: cfg.Challenges.Retention,
			Logger:    opts.Logger,
		}),
		issuer:      issuer,
		verifier:    verifier,
		revocations: revocations,
		agents: webbotauth.NewVerifier(webbotauth.VerifierOptions{
			Registry:  registry,
			Directory: webbotauth.NewDirectory(opts.HTTPClient, cfg.WebBotAuth.DirectoryTimeout),
			Clock:     opts.Clock,
			Logger:    opts.Logger,
		}),
		badges: badges,
		now:    opts.Clock,
		lg:     opts.Logger,
	}

	go result.challenges.Run(ctx, cfg.Challenges.SweepInterval)

	mux := http.NewServeMux()

	register := func(method, pattern string, handler http.Handler) {
		mux.Handle(method+" "+botcha.APIPrefix+pattern, handler)
	}

	register("GET", "challenges", http.HandlerFunc(result.MakeChallenge))
	register("POST", "challenges/verify", http.HandlerFunc(result.PassChallenge))
	// token and token/verify are the paths older SDK clients use for the same exchange.
	register("GET", "token", http.HandlerFunc(result.MakeChallenge))
	register("POST", "token/verify", http.HandlerFunc(result.PassChallenge))
	register("POST", "token/refresh", http.HandlerFunc(result.RefreshToken))
	register("POST", "token/revoke", http.HandlerFunc(result.RevokeToken))
	register("POST", "agents/verify", http.HandlerFunc(result.VerifyAgent))
	register("GET", "badges/{token}", http.HandlerFunc(result.GetBadge))
	register("GET", "protected", result.RequireCredential(GuardOptions{}, http.HandlerFunc(result.Protected)))

	result.mux = mux

	opts.Logger.Debug("server ready",
		"store", cfg.Store.Backend,
		"challenge_kinds", challenge.Methods(),
		"trusted_providers", registry.Hosts(),
		"revocation_policy", revocationPolicy.String(),
	)

	return result, nil
}

// Verifier is the credential gate, for callers mounting RequireCredential
// style checks outside this server.
func (s *Server) Verifier() *credential.Verifier {
	return s.verifier
}

// Close releases the store backend if it holds resources.
func (s *Server) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
