package challenge_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/lib/challenge"
	"github.com/TecharoHQ/botcha/lib/challenge/challengetest"
	"github.com/TecharoHQ/botcha/lib/store/memory"
)

const kindEcho challenge.Kind = "echo"

// echo expects the challenge id back as the only answer.
type echo struct{}

func (echo) Issue(_ *slog.Logger, in *challenge.IssueInput) error {
	in.Challenge.ExpectedAnswers = []string{in.Challenge.ID}
	in.Challenge.TimeLimit = time.Second
	in.Challenge.ExpiresAt = in.Challenge.IssuedAt.Add(time.Second)
	return nil
}

func (echo) ParseAnswers(raw string) ([]string, error) { return []string{raw}, nil }

func (echo) Validate(_ *slog.Logger, in *challenge.ValidateInput) error {
	if len(in.Answers) != 1 || in.Answers[0] != in.Challenge.ExpectedAnswers[0] {
		return challenge.NewError("validate", botcha.KindAnswerMismatch, challenge.ErrAnswerMismatch).WithIndex(0)
	}
	return nil
}

func init() {
	challenge.Register(kindEcho, echo{})
}

func TestConsumeUnknown(t *testing.T) {
	s := challengetest.Store(t, challengetest.NewClock())

	_, _, err := s.Consume(t.Context(), "does-not-exist")
	if !errors.Is(err, challenge.ErrNotFound) {
		t.Fatalf("wanted %v, got: %v", challenge.ErrNotFound, err)
	}

	if kind := challenge.KindOf(err); kind != botcha.KindChallengeNotFoundOrExpired {
		t.Errorf("wanted kind %s, got: %s", botcha.KindChallengeNotFoundOrExpired, kind)
	}
}

func TestGenerateUnknownKind(t *testing.T) {
	s := challengetest.Store(t, challengetest.NewClock())

	if _, err := s.Generate(t.Context(), "nope", challenge.DifficultyNone); !errors.Is(err, challenge.ErrUnknownKind) {
		t.Fatalf("wanted %v, got: %v", challenge.ErrUnknownKind, err)
	}
}

func TestSingleUse(t *testing.T) {
	for _, tt := range []struct {
		name   string
		answer func(c *challenge.Challenge) string
		err    error
	}{
		{name: "after success", answer: func(c *challenge.Challenge) string { return c.ID }},
		{name: "after failure", answer: func(*challenge.Challenge) string { return "wrong" }, err: challenge.ErrAnswerMismatch},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := challengetest.Store(t, challengetest.NewClock())

			c, err := s.Generate(t.Context(), kindEcho, challenge.DifficultyNone)
			if err != nil {
				t.Fatal(err)
			}

			if _, err := s.Verify(t.Context(), slog.Default(), c.ID, []string{tt.answer(c)}); !errors.Is(err, tt.err) {
				t.Fatalf("first verify: wanted %v, got: %v", tt.err, err)
			}

			if _, err := s.Verify(t.Context(), slog.Default(), c.ID, []string{c.ID}); !errors.Is(err, challenge.ErrNotFound) {
				t.Fatalf("second verify: wanted %v, got: %v", challenge.ErrNotFound, err)
			}
		})
	}
}

func TestConcurrentConsume(t *testing.T) {
	s := challengetest.Store(t, challengetest.NewClock())

	c, err := s.Generate(t.Context(), kindEcho, challenge.DifficultyNone)
	if err != nil {
		t.Fatal(err)
	}

	var wins, notFound atomic.Int32
	var wg sync.WaitGroup

	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Verify(t.Context(), slog.Default(), c.ID, []string{c.ID})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, challenge.ErrNotFound):
				notFound.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if wins.Load() != 1 || notFound.Load() != 63 {
		t.Fatalf("wanted 1 winner and 63 not found, got %d and %d", wins.Load(), notFound.Load())
	}
}

func TestLateAnswerIsTooSlow(t *testing.T) {
	clock := challengetest.NewClock()
	s := challengetest.Store(t, clock)

	c, err := s.Generate(t.Context(), kindEcho, challenge.DifficultyNone)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Second)

	_, err = s.Verify(t.Context(), slog.Default(), c.ID, []string{c.ID})
	if !errors.Is(err, challenge.ErrTooSlow) {
		t.Fatalf("wanted %v, got: %v", challenge.ErrTooSlow, err)
	}

	if kind := challenge.KindOf(err); kind != botcha.KindTooSlow {
		t.Errorf("wanted kind %s, got: %s", botcha.KindTooSlow, kind)
	}
}

func TestSolveTime(t *testing.T) {
	clock := challengetest.NewClock()
	s := challengetest.Store(t, clock)

	c, err := s.Generate(t.Context(), kindEcho, challenge.DifficultyNone)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(321 * time.Millisecond)

	out, err := s.Verify(t.Context(), slog.Default(), c.ID, []string{c.ID})
	if err != nil {
		t.Fatal(err)
	}

	if out.SolveTimeMs() != 321 {
		t.Errorf("wanted 321ms, got: %dms", out.SolveTimeMs())
	}
}

func TestSweep(t *testing.T) {
	s := challenge.NewStore(memory.New(), challenge.StoreOptions{
		Retention: time.Millisecond,
	})

	c := challengetest.New(t, kindEcho)
	c.ExpiresAt = c.IssuedAt
	if err := s.Issue(t.Context(), c); err != nil {
		t.Fatal(err)
	}

	live, err := s.Generate(t.Context(), kindEcho, challenge.DifficultyNone)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)

	n, err := s.Sweep(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	if n != 1 {
		t.Errorf("wanted 1 challenge swept, got: %d", n)
	}

	if _, _, err := s.Consume(t.Context(), c.ID); !errors.Is(err, challenge.ErrNotFound) {
		t.Errorf("swept challenge: wanted %v, got: %v", challenge.ErrNotFound, err)
	}

	if _, _, err := s.Consume(t.Context(), live.ID); err != nil {
		t.Errorf("live challenge was swept: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := challengetest.Store(t, challengetest.NewClock())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestVerifyRaw(t *testing.T) {
	s := challengetest.Store(t, challengetest.NewClock())

	c, err := s.Generate(t.Context(), kindEcho, challenge.DifficultyNone)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.VerifyRaw(t.Context(), slog.Default(), c.ID, c.ID); err != nil {
		t.Fatalf("raw answer rejected: %v", err)
	}

	if _, err := s.VerifyRaw(t.Context(), slog.Default(), c.ID, c.ID); !errors.Is(err, challenge.ErrNotFound) {
		t.Fatalf("wanted %v on reuse, got: %v", challenge.ErrNotFound, err)
	}
}
