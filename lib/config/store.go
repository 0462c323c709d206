package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TecharoHQ/botcha/lib/store"
	_ "github.com/TecharoHQ/botcha/lib/store/all"
)

var (
	ErrNoStoreBackend      = errors.New("config.Store: no backend defined")
	ErrUnknownStoreBackend = errors.New("config.Store: unknown backend")
)

// Store selects the backend that holds challenges and revocations.
type Store struct {
	Backend    string          `json:"backend"`
	Parameters json.RawMessage `json:"parameters"`
}

func (s *Store) Valid() error {
	var errs []error

	if len(s.Backend) == 0 {
		errs = append(errs, ErrNoStoreBackend)
	}

	fac, ok := store.Get(s.Backend)
	switch ok {
	case true:
		if err := fac.Valid(s.Parameters); err != nil {
			errs = append(errs, err)
		}
	case false:
		errs = append(errs, fmt.Errorf("%w: %q, want one of %s", ErrUnknownStoreBackend, s.Backend, strings.Join(store.Methods(), ", ")))
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}
