// Package speed implements the speed challenge: hash five random numbers
// faster than a human could type them.
package speed

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/internal"
	chall "github.com/TecharoHQ/botcha/lib/challenge"
)

const (
	// Count is how many numbers every speed challenge carries.
	Count = 5

	// MinProblem and MaxProblem bound the random numbers, inclusive.
	MinProblem = 100000
	MaxProblem = 999999

	// AnswerLen is how many hex characters of the digest make up an answer.
	AnswerLen = 8

	TimeLimit = 500 * time.Millisecond
	Grace     = 100 * time.Millisecond
)

const instructions = "Compute SHA-256 of each number, return the first 8 hex characters"

func init() {
	chall.Register(chall.KindSpeed, &Impl{})
}

type Impl struct{}

// Answer is the expected answer for a single problem.
func Answer(problem int) string {
	return internal.SHA256sum(strconv.Itoa(problem))[:AnswerLen]
}

func randomProblem() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxProblem-MinProblem+1))
	if err != nil {
		return 0, err
	}

	return int(n.Int64()) + MinProblem, nil
}

func (i *Impl) Issue(lg *slog.Logger, in *chall.IssueInput) error {
	c := in.Challenge

	c.Problems = make([]int, Count)
	c.ExpectedAnswers = make([]string, Count)

	for j := range Count {
		p, err := randomProblem()
		if err != nil {
			return fmt.Errorf("speed: can't generate problem: %w", err)
		}

		c.Problems[j] = p
		c.ExpectedAnswers[j] = Answer(p)
	}

	c.TimeLimit = TimeLimit
	c.ExpiresAt = c.IssuedAt.Add(TimeLimit + Grace)
	c.Instructions = instructions

	return nil
}

// ParseAnswers decodes a JSON array of strings.
func (i *Impl) ParseAnswers(raw string) ([]string, error) {
	if raw == "" {
		return nil, chall.NewError("parse", botcha.KindNone, fmt.Errorf("%w answers", chall.ErrMissingField))
	}

	var answers []string
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, chall.NewError("parse", botcha.KindNone, fmt.Errorf("%w: answers: %w", chall.ErrInvalidFormat, err))
	}

	return answers, nil
}

func (i *Impl) Validate(lg *slog.Logger, in *chall.ValidateInput) error {
	want := in.Challenge.ExpectedAnswers

	if len(in.Answers) != len(want) {
		return chall.NewError("validate", botcha.KindAnswerCountMismatch, fmt.Errorf("%w: wanted %d answers but got %d", chall.ErrAnswerCount, len(want), len(in.Answers)))
	}

	for j, got := range in.Answers {
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want[j])) != 1 {
			return chall.NewError("validate", botcha.KindAnswerMismatch, fmt.Errorf("%w: answer %d: wanted %s but got %s", chall.ErrAnswerMismatch, j, want[j], got)).WithIndex(j)
		}
	}

	return nil
}
