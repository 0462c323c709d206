package store_test

import (
	"context"
	"encoding/json"
	"slices"
	"testing"

	"github.com/TecharoHQ/botcha/lib/store"
	_ "github.com/TecharoHQ/botcha/lib/store/all"
)

type nopFactory struct{}

func (nopFactory) Build(context.Context, json.RawMessage) (store.Interface, error) { return nil, nil }
func (nopFactory) Valid(json.RawMessage) error                                     { return nil }

func TestShippedBackends(t *testing.T) {
	got := store.Methods()

	for _, name := range []string{"bbolt", "memory", "valkey"} {
		if !slices.Contains(got, name) {
			t.Errorf("backend %q is not registered, have: %v", name, got)
		}

		if _, ok := store.Get(name); !ok {
			t.Errorf("Get(%q) found nothing", name)
		}
	}

	if !slices.IsSorted(got) {
		t.Errorf("Methods() is not sorted: %v", got)
	}

	if _, ok := store.Get("sqlite"); ok {
		t.Error("Get returned a backend that was never registered")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	store.Register("test-register-twice", nopFactory{})

	defer func() {
		if recover() == nil {
			t.Fatal("second Register did not panic")
		}
	}()

	store.Register("test-register-twice", nopFactory{})
}
