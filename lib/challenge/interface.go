package challenge

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	registry map[Kind]Impl = map[Kind]Impl{}
	regLock  sync.RWMutex
)

func Register(kind Kind, impl Impl) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[kind] = impl
}

func Get(kind Kind) (Impl, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[kind]
	return result, ok
}

func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for kind := range registry {
		result = append(result, string(kind))
	}
	sort.Strings(result)
	return result
}

type IssueInput struct {
	// Challenge has ID, Kind and IssuedAt filled in. Issue sets the rest.
	Challenge  *Challenge
	Difficulty Difficulty
}

type ValidateInput struct {
	Challenge  *Challenge
	Answers    []string
	ConsumedAt time.Time
}

type Impl interface {
	// Issue builds the puzzle, the expected answers and the expiry of a new
	// challenge.
	Issue(lg *slog.Logger, in *IssueInput) error

	// ParseAnswers turns the raw answers header into the list Validate expects.
	ParseAnswers(raw string) ([]string, error)

	// Validate a consumed challenge, making sure that it passes muster.
	Validate(lg *slog.Logger, in *ValidateInput) error
}
