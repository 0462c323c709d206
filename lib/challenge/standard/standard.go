// Package standard implements the prime challenge: compute the first N
// primes, hash their concatenation and answer with a digest prefix.
package standard

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/internal"
	chall "github.com/TecharoHQ/botcha/lib/challenge"
)

// AnswerLen is how many hex characters of the digest make up the answer.
const AnswerLen = 16

const hint = "The first 5 primes concatenate to 235711"

// Tier is the size and time limit of one difficulty level.
type Tier struct {
	Primes    int
	TimeLimit time.Duration
}

var Tiers = map[chall.Difficulty]Tier{
	chall.DifficultyEasy:   {Primes: 100, TimeLimit: 10 * time.Second},
	chall.DifficultyMedium: {Primes: 500, TimeLimit: 5 * time.Second},
	chall.DifficultyHard:   {Primes: 1000, TimeLimit: 3 * time.Second},
}

// DefaultDifficulty is used when the caller does not pick one.
const DefaultDifficulty = chall.DifficultyMedium

func init() {
	chall.Register(chall.KindStandard, &Impl{})
}

type Impl struct {
	answers sync.Map // chall.Difficulty -> string
}

// GeneratePrimes returns the first n primes in ascending order, found by trial
// division up to the integer square root.
func GeneratePrimes(n int) []int {
	result := make([]int, 0, n)

	for candidate := 2; len(result) < n; candidate++ {
		prime := true
		for _, p := range result {
			if p*p > candidate {
				break
			}
			if candidate%p == 0 {
				prime = false
				break
			}
		}

		if prime {
			result = append(result, candidate)
		}
	}

	return result
}

// Answer is the expected answer for the first n primes.
func Answer(n int) string {
	var sb strings.Builder
	for _, p := range GeneratePrimes(n) {
		sb.WriteString(strconv.Itoa(p))
	}

	return internal.SHA256sum(sb.String())[:AnswerLen]
}

func (i *Impl) answer(difficulty chall.Difficulty, n int) string {
	if val, ok := i.answers.Load(difficulty); ok {
		return val.(string)
	}

	result := Answer(n)
	i.answers.Store(difficulty, result)
	return result
}

func (i *Impl) Issue(lg *slog.Logger, in *chall.IssueInput) error {
	difficulty := in.Difficulty
	if difficulty == chall.DifficultyNone {
		difficulty = DefaultDifficulty
	}

	tier, ok := Tiers[difficulty]
	if !ok {
		return chall.NewError("issue", botcha.KindNone, fmt.Errorf("%w: difficulty %q", chall.ErrInvalidFormat, difficulty))
	}

	c := in.Challenge
	c.Difficulty = difficulty
	c.ExpectedAnswers = []string{i.answer(difficulty, tier.Primes)}
	c.TimeLimit = tier.TimeLimit
	c.ExpiresAt = c.IssuedAt.Add(tier.TimeLimit)
	c.Puzzle = fmt.Sprintf("Compute the first %d prime numbers, concatenate them without separators, SHA-256 the result and return the first %d hex characters", tier.Primes, AnswerLen)
	c.Hint = hint

	return nil
}

// ParseAnswers accepts the answer either bare or as a JSON string.
func (i *Impl) ParseAnswers(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, chall.NewError("parse", botcha.KindNone, fmt.Errorf("%w answer", chall.ErrMissingField))
	}

	if strings.HasPrefix(raw, `"`) {
		var answer string
		if err := json.Unmarshal([]byte(raw), &answer); err != nil {
			return nil, chall.NewError("parse", botcha.KindNone, fmt.Errorf("%w: answer: %w", chall.ErrInvalidFormat, err))
		}
		raw = answer
	}

	return []string{raw}, nil
}

func (i *Impl) Validate(lg *slog.Logger, in *chall.ValidateInput) error {
	if len(in.Answers) != 1 {
		return chall.NewError("validate", botcha.KindAnswerCountMismatch, fmt.Errorf("%w: wanted 1 answer but got %d", chall.ErrAnswerCount, len(in.Answers)))
	}

	want := in.Challenge.ExpectedAnswers[0]
	got := strings.ToLower(in.Answers[0])

	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return chall.NewError("validate", botcha.KindAnswerMismatch, fmt.Errorf("%w: wanted %s but got %s", chall.ErrAnswerMismatch, want, got)).WithIndex(0)
	}

	return nil
}
