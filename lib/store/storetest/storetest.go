// Package storetest holds the conformance suite every store backend must pass.
package storetest

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TecharoHQ/botcha/lib/store"
)

func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Interface) error
		err  error
	}{
		{
			name: "basic get set delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to exist in store but it does not: %v", t.Name(), err)
				} else if err != nil {
					t.Error(err)
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Logf("want: %q", t.Name())
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("wanted test to not exist in store but it exists anyways")
				}

				if err := s.Delete(t.Context(), t.Name()); err == nil {
					t.Errorf("key %q does not exist and Delete did not return non-nil", t.Name())
				}

				return nil
			},
		},
		{
			name: "take is single use",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Take(t.Context(), t.Name())
				if err != nil {
					return err
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Errorf("wrong value returned from Take: %q", string(val))
				}

				if _, err := s.Take(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("second Take: wanted %v, got: %v", store.ErrNotFound, err)
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("Get after Take: wanted %v, got: %v", store.ErrNotFound, err)
				}

				return nil
			},
		},
		{
			name: "concurrent take has one winner",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("x"), 5*time.Minute); err != nil {
					return err
				}

				var wins atomic.Int32
				var wg sync.WaitGroup
				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, err := s.Take(t.Context(), t.Name()); err == nil {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()

				if got := wins.Load(); got != 1 {
					t.Errorf("wanted exactly one Take to win, got: %d", got)
				}

				return nil
			},
		},
		{
			name: "expires",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 150*time.Millisecond); err != nil {
					return err
				}

				//nosleep:bypass XXX(Xe): use Go's time faking thing in Go 1.25 when that is released.
				time.Sleep(155 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if _, err := s.Take(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted expired %s to not be taken", t.Name())
				}

				return nil
			},
		},
		{
			name: "sweep",
			doer: func(t *testing.T, s store.Interface) error {
				sw, ok := s.(store.Sweeper)
				if !ok {
					t.Skip("backend expires values natively")
				}

				if err := s.Set(t.Context(), t.Name()+"-short", []byte("x"), 50*time.Millisecond); err != nil {
					return err
				}

				if err := s.Set(t.Context(), t.Name()+"-long", []byte("x"), 5*time.Minute); err != nil {
					return err
				}

				time.Sleep(60 * time.Millisecond)

				if _, err := sw.Sweep(t.Context()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()+"-long"); err != nil {
					t.Errorf("sweep removed a live value: %v", err)
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
