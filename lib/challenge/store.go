package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/lib/store"
	"github.com/google/uuid"
)

const (
	// DefaultRetention is how long a record outlives its ExpiresAt in the
	// backend, so late answers are reported as TooSlow instead of not found.
	DefaultRetention = time.Minute

	// DefaultSweepInterval is how often Run sweeps the backend.
	DefaultSweepInterval = time.Minute
)

// StoreOptions tunes a Store. The zero value is usable.
type StoreOptions struct {
	Clock     func() time.Time
	Retention time.Duration
	Logger    *slog.Logger
}

// Store keeps outstanding challenges in a store.Interface. Any backend with
// an atomic Take gives Consume its single-winner guarantee.
type Store struct {
	backend   store.Interface
	json      *store.JSON[Challenge]
	now       func() time.Time
	retention time.Duration
	lg        *slog.Logger
}

func NewStore(backend store.Interface, opts StoreOptions) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Store{
		backend:   backend,
		json:      &store.JSON[Challenge]{Underlying: backend, Prefix: "challenge:"},
		now:       opts.Clock,
		retention: opts.Retention,
		lg:        opts.Logger.With("subsystem", "challenge-store"),
	}
}

// Now is the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Generate asks the protocol registered for kind to build a challenge, stores
// it, and returns it. Callers must only hand out Challenge.Public().
func (s *Store) Generate(ctx context.Context, kind Kind, difficulty Difficulty) (*Challenge, error) {
	impl, ok := Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("can't generate challenge id: %w", err)
	}

	chall := &Challenge{
		ID:       id.String(),
		Kind:     kind,
		IssuedAt: s.now(),
	}

	lg := s.lg.With("challenge", chall.ID, "kind", kind)

	if err := impl.Issue(lg, &IssueInput{Challenge: chall, Difficulty: difficulty}); err != nil {
		return nil, err
	}

	if err := s.Issue(ctx, chall); err != nil {
		return nil, err
	}

	Issued.WithLabelValues(string(kind)).Inc()
	lg.Debug("issued challenge", "difficulty", chall.Difficulty, "expires_at", chall.ExpiresAt)

	return chall, nil
}

// Issue stores a fully built challenge.
func (s *Store) Issue(ctx context.Context, chall *Challenge) error {
	ttl := chall.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}

	if err := s.json.Set(ctx, chall.ID, *chall, ttl); err != nil {
		return fmt.Errorf("can't store challenge %s: %w", chall.ID, err)
	}

	return nil
}

// Consume removes the challenge from the store and returns it along with the
// instant the removal happened. The entry is gone whatever the caller does
// with it next, so a challenge is single use.
func (s *Store) Consume(ctx context.Context, id string) (*Challenge, time.Time, error) {
	chall, err := s.json.Take(ctx, id)
	consumedAt := s.now()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, consumedAt, NewError("consume", botcha.KindChallengeNotFoundOrExpired, fmt.Errorf("%w: %s", ErrNotFound, id))
		}

		return nil, consumedAt, fmt.Errorf("can't consume challenge %s: %w", id, err)
	}

	return &chall, consumedAt, nil
}

// Outcome is the result of a successful Verify.
type Outcome struct {
	Challenge *Challenge
	SolveTime time.Duration
}

// SolveTimeMs is the solve time in whole milliseconds.
func (o Outcome) SolveTimeMs() int64 {
	return o.SolveTime.Milliseconds()
}

// Verify consumes the challenge with the given id and checks answers against
// it. Expiry is checked before the answers: a late attempt is TooSlow even if
// every answer is right.
func (s *Store) Verify(ctx context.Context, lg *slog.Logger, id string, answers []string) (*Outcome, error) {
	return s.verify(ctx, lg, id, func(Impl) ([]string, error) { return answers, nil })
}

// VerifyRaw is Verify for answers still in their wire form. The challenge is
// consumed before the answers are parsed, so a malformed submission burns it.
func (s *Store) VerifyRaw(ctx context.Context, lg *slog.Logger, id string, raw string) (*Outcome, error) {
	return s.verify(ctx, lg, id, func(impl Impl) ([]string, error) { return impl.ParseAnswers(raw) })
}

func (s *Store) verify(ctx context.Context, lg *slog.Logger, id string, getAnswers func(Impl) ([]string, error)) (*Outcome, error) {
	chall, consumedAt, err := s.Consume(ctx, id)
	if err != nil {
		Validated.WithLabelValues("unknown", string(KindOf(err))).Inc()
		return nil, err
	}

	lg = lg.With("challenge", chall.ID, "kind", chall.Kind)

	impl, ok := Get(chall.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, chall.Kind)
	}

	solveTime := consumedAt.Sub(chall.IssuedAt)

	if consumedAt.After(chall.ExpiresAt) {
		Validated.WithLabelValues(string(chall.Kind), string(botcha.KindTooSlow)).Inc()
		return nil, NewError("validate", botcha.KindTooSlow, fmt.Errorf("%w: took %s, limit %s", ErrTooSlow, solveTime, chall.ExpiresAt.Sub(chall.IssuedAt)))
	}

	answers, err := getAnswers(impl)
	if err != nil {
		Validated.WithLabelValues(string(chall.Kind), "malformed").Inc()
		return nil, err
	}

	if err := impl.Validate(lg, &ValidateInput{
		Challenge:  chall,
		Answers:    answers,
		ConsumedAt: consumedAt,
	}); err != nil {
		Validated.WithLabelValues(string(chall.Kind), string(KindOf(err))).Inc()
		return nil, err
	}

	Validated.WithLabelValues(string(chall.Kind), "ok").Inc()
	TimeTaken.WithLabelValues(string(chall.Kind)).Observe(float64(solveTime.Milliseconds()))
	lg.Debug("challenge passed", "solve_time", solveTime)

	return &Outcome{Challenge: chall, SolveTime: solveTime}, nil
}

// Sweep removes expired challenges from backends that need it. Backends that
// expire values themselves report zero.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	sw, ok := s.backend.(store.Sweeper)
	if !ok {
		return 0, nil
	}

	n, err := sw.Sweep(ctx)
	if err != nil {
		return n, fmt.Errorf("can't sweep challenge store: %w", err)
	}

	Swept.Add(float64(n))
	return n, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.lg.Error("error during sweep", "err", err)
				continue
			}
			if n != 0 {
				s.lg.Debug("swept expired challenges", "count", n)
			}
		}
	}
}
