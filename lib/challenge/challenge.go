package challenge

import (
	"time"
)

// Kind names a challenge protocol.
type Kind string

const (
	KindSpeed    Kind = "speed"
	KindStandard Kind = "standard"
)

// Difficulty is the tier of a standard challenge. Speed challenges have none.
type Difficulty string

const (
	DifficultyNone   Difficulty = ""
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Challenge is the metadata about a single challenge issuance. It is owned by
// the Store from Issue until Consume or Sweep removes it.
type Challenge struct {
	ID              string     `json:"id"`                   // UUIDv7 identifying the challenge
	Kind            Kind       `json:"kind"`                 // Which protocol generated it
	ExpectedAnswers []string   `json:"expectedAnswers"`      // Never sent to clients
	IssuedAt        time.Time  `json:"issuedAt"`             // When the challenge was issued
	ExpiresAt       time.Time  `json:"expiresAt"`            // Time limit plus grace, after which answers are TooSlow
	Difficulty      Difficulty `json:"difficulty,omitempty"` // Standard tier

	// Public payload.
	Problems     []int         `json:"problems,omitempty"`
	Puzzle       string        `json:"puzzle,omitempty"`
	TimeLimit    time.Duration `json:"timeLimit"`
	Instructions string        `json:"instructions,omitempty"`
	Hint         string        `json:"hint,omitempty"`
}

// Public is the part of a Challenge that is safe to hand to the caller.
type Public struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind"`
	Problems     []int      `json:"problems,omitempty"`
	Puzzle       string     `json:"puzzle,omitempty"`
	TimeLimitMs  int64      `json:"timeLimit"`
	Difficulty   Difficulty `json:"difficulty,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Hint         string     `json:"hint,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Public strips the expected answers.
func (c *Challenge) Public() Public {
	return Public{
		ID:           c.ID,
		Kind:         c.Kind,
		Problems:     c.Problems,
		Puzzle:       c.Puzzle,
		TimeLimitMs:  c.TimeLimit.Milliseconds(),
		Difficulty:   c.Difficulty,
		Instructions: c.Instructions,
		Hint:         c.Hint,
		ExpiresAt:    c.ExpiresAt,
	}
}
