package webbotauth

import (
	"errors"
	"testing"

	"github.com/TecharoHQ/botcha"
)

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry([]string{"anthropic.com", "ChatGPT.com", "bücher.example"})
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name  string
		agent string
		host  string
		err   error
	}{
		{name: "sf-string", agent: `"https://anthropic.com"`, host: "anthropic.com"},
		{name: "bare url", agent: "https://anthropic.com/.well-known/http-message-signatures-directory", host: "anthropic.com"},
		{name: "dictionary", agent: `agent1="https://chatgpt.com"`, host: "chatgpt.com"},
		{name: "upper case host", agent: "https://ANTHROPIC.COM", host: "anthropic.com"},
		{name: "port", agent: "https://anthropic.com:8443", host: "anthropic.com"},
		{name: "idna", agent: "https://BÜCHER.example", host: "xn--bcher-kva.example"},
		{name: "punycode", agent: "https://xn--bcher-kva.example", host: "xn--bcher-kva.example"},
		{name: "evil.com", agent: "https://evil.com", err: ErrUntrustedProvider},
		{name: "suffix lookalike", agent: "https://notanthropic.net", err: ErrUntrustedProvider},
		{name: "prefix lookalike", agent: "https://notanthropic.com", err: ErrUntrustedProvider},
		{name: "subdomain", agent: "https://api.anthropic.com", err: ErrUntrustedProvider},
		{name: "trusted host as subdomain", agent: "https://anthropic.com.evil.com", err: ErrUntrustedProvider},
		{name: "http", agent: "http://anthropic.com", err: ErrUntrustedProvider},
		{name: "no scheme", agent: "anthropic.com", err: ErrUntrustedProvider},
		{name: "malformed", agent: "https://[::1", err: ErrUntrustedProvider},
		{name: "garbage", agent: `"unterminated`, err: ErrUntrustedProvider},
		{name: "userinfo", agent: "https://anthropic.com@evil.com", err: ErrUntrustedProvider},
		{name: "empty host", agent: "https://", err: ErrUntrustedProvider},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, host, err := r.Resolve(tt.agent)
			if !errors.Is(err, tt.err) {
				t.Fatalf("wanted %v, got: %v", tt.err, err)
			}

			if tt.err != nil {
				if kind := KindOf(err); kind != botcha.KindUntrustedProvider {
					t.Errorf("wanted kind %s, got: %s", botcha.KindUntrustedProvider, kind)
				}
				return
			}

			if host != tt.host {
				t.Errorf("wanted host %s, got: %s", tt.host, host)
			}
		})
	}
}

func TestRegistryTrusted(t *testing.T) {
	r, err := NewRegistry(DefaultTrustedProviders)
	if err != nil {
		t.Fatal(err)
	}

	for _, host := range DefaultTrustedProviders {
		if !r.Trusted(host) {
			t.Errorf("%s should be trusted", host)
		}
	}

	for _, host := range []string{"evil.com", "notanthropic.net", "", "anthropic.com.evil.com"} {
		if r.Trusted(host) {
			t.Errorf("%q should not be trusted", host)
		}
	}

	if got := len(r.Hosts()); got != len(DefaultTrustedProviders) {
		t.Errorf("wanted %d hosts, got: %d", len(DefaultTrustedProviders), got)
	}
}

func TestNewRegistryInvalidHost(t *testing.T) {
	if _, err := NewRegistry([]string{"   "}); !errors.Is(err, ErrInvalidHost) {
		t.Fatalf("wanted %v, got: %v", ErrInvalidHost, err)
	}
}
