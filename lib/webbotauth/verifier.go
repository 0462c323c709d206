// Package webbotauth verifies Web Bot Auth requests: HTTP message signatures
// (RFC 9421) made with a key published in a trusted operator's directory.
package webbotauth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/TecharoHQ/botcha"
)

// Verifier checks signed requests. It keeps no per-request state.
type Verifier struct {
	registry  *Registry
	directory *Directory
	now       func() time.Time
	lg        *slog.Logger
}

type VerifierOptions struct {
	Registry  *Registry
	Directory *Directory
	Clock     func() time.Time
	Logger    *slog.Logger
}

func NewVerifier(opts VerifierOptions) *Verifier {
	if opts.Directory == nil {
		opts.Directory = NewDirectory(nil, 0)
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Verifier{
		registry:  opts.Registry,
		directory: opts.Directory,
		now:       opts.Clock,
		lg:        opts.Logger.With("subsystem", "webbotauth"),
	}
}

// Result is the outcome of a verification. On success Agent is the
// Signature-Agent URL and Host its trusted host.
type Result struct {
	Valid  bool
	Agent  string
	Host   string
	KeyID  string
	Kind   botcha.Kind
	Reason string
}

func fail(err error) Result {
	kind := KindOf(err)
	Verifications.WithLabelValues(string(kind)).Inc()
	return Result{Kind: kind, Reason: err.Error()}
}

// VerifyRequest is Verify on a snapshot of r.
func (v *Verifier) VerifyRequest(ctx context.Context, r *http.Request) Result {
	return v.Verify(ctx, MessageFromRequest(r))
}

// Verify runs the checks in order and stops at the first failure: headers
// present, provider trusted, directory key found, signature valid.
func (v *Verifier) Verify(ctx context.Context, m Message) Result {
	agent := m.Header.Get(botcha.HeaderSignatureAgent)
	if agent == "" {
		return fail(newError(botcha.KindSignatureHeadersMissing, ErrMissingAgent))
	}

	sigHeader := m.Header.Get(botcha.HeaderSignature)
	inputHeader := m.Header.Get(botcha.HeaderSignatureInput)
	if sigHeader == "" || inputHeader == "" {
		return fail(newError(botcha.KindSignatureHeadersMissing, ErrMissingSignature))
	}

	agentURL, host, err := v.registry.Resolve(agent)
	if err != nil {
		v.lg.Debug("untrusted signature agent", "agent", agent, "err", err)
		return fail(err)
	}

	lg := v.lg.With("agent", agentURL.String(), "host", host)

	inputs, err := parseSignatureInput(m.Header.Values(botcha.HeaderSignatureInput))
	if err != nil {
		return fail(wrapf(botcha.KindSignatureMismatch, ErrSignatureMismatch, "bad Signature-Input: %v", err))
	}

	sigs, err := parseSignatures(m.Header.Values(botcha.HeaderSignature))
	if err != nil {
		return fail(wrapf(botcha.KindSignatureMismatch, ErrSignatureMismatch, "bad Signature: %v", err))
	}

	in, sig, ok := pickSignature(inputs, sigs)
	if !ok {
		return fail(wrapf(botcha.KindSignatureMismatch, ErrSignatureMismatch, "no Signature-Input label has a matching Signature"))
	}

	lg = lg.With("label", in.label, "keyid", in.keyID)

	if in.expires != 0 && v.now().Unix() > in.expires {
		return fail(wrapf(botcha.KindSignatureMismatch, ErrSignatureMismatch, "signature expired at %d", in.expires))
	}

	set, err := v.directory.Fetch(ctx, agentURL)
	if err != nil {
		lg.Warn("can't fetch agent directory", "err", err)
		return fail(err)
	}

	key, err := FindKey(set, in.keyID)
	if err != nil {
		lg.Debug("signing key not in directory", "err", err)
		return fail(err)
	}

	base, err := SignatureBase(m, in.components, in.params)
	if err != nil {
		return fail(wrapf(botcha.KindSignatureMismatch, ErrSignatureMismatch, "%v", err))
	}

	if err := verifySignature(in.alg, key, base, sig); err != nil {
		lg.Debug("signature did not verify", "err", err)
		return fail(wrapf(botcha.KindSignatureMismatch, ErrSignatureMismatch, "%v", err))
	}

	Verifications.WithLabelValues("ok").Inc()
	lg.Debug("signature verified")

	return Result{
		Valid: true,
		Agent: agentURL.String(),
		Host:  host,
		KeyID: in.keyID,
	}
}
