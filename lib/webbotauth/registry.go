package webbotauth

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/TecharoHQ/botcha"
	"github.com/dunglas/httpsfv"
	"golang.org/x/net/idna"
)

// DefaultTrustedProviders are the operators trusted when the configuration
// does not list any.
var DefaultTrustedProviders = []string{
	"anthropic.com",
	"claude.ai",
	"openai.com",
	"chatgpt.com",
	"perplexity.ai",
}

// Registry is a static allow-list of agent operator hosts. Membership is an
// exact match after normalization; listing example.com does not trust
// api.example.com.
type Registry struct {
	hosts map[string]struct{}
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHost)
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidHost, host, err)
	}

	return strings.ToLower(ascii), nil
}

// NewRegistry builds a registry from a list of hosts.
func NewRegistry(hosts []string) (*Registry, error) {
	result := &Registry{hosts: make(map[string]struct{}, len(hosts))}

	for _, h := range hosts {
		norm, err := normalizeHost(h)
		if err != nil {
			return nil, err
		}

		result.hosts[norm] = struct{}{}
	}

	return result, nil
}

// Trusted reports whether host is on the list.
func (r *Registry) Trusted(host string) bool {
	norm, err := normalizeHost(host)
	if err != nil {
		return false
	}

	_, ok := r.hosts[norm]
	return ok
}

// Hosts lists the trusted hosts in sorted order.
func (r *Registry) Hosts() []string {
	result := make([]string, 0, len(r.hosts))
	for h := range r.hosts {
		result = append(result, h)
	}
	slices.Sort(result)
	return result
}

// Resolve parses a Signature-Agent value and checks it against the list. The
// value may be a quoted structured-field string, a dictionary of them, or a
// bare URL. Anything that does not parse is untrusted.
func (r *Registry) Resolve(agent string) (*url.URL, string, error) {
	raw, err := parseAgentHeader(agent)
	if err != nil {
		return nil, "", wrapf(botcha.KindUntrustedProvider, ErrUntrustedProvider, "%v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", wrapf(botcha.KindUntrustedProvider, ErrUntrustedProvider, "can't parse %q: %v", raw, err)
	}

	if u.Scheme != "https" {
		return nil, "", wrapf(botcha.KindUntrustedProvider, ErrUntrustedProvider, "scheme must be https, got %q", u.Scheme)
	}

	if u.User != nil {
		return nil, "", wrapf(botcha.KindUntrustedProvider, ErrUntrustedProvider, "userinfo is not allowed in %q", raw)
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return nil, "", wrapf(botcha.KindUntrustedProvider, ErrUntrustedProvider, "%v", err)
	}

	if _, ok := r.hosts[host]; !ok {
		return nil, "", wrapf(botcha.KindUntrustedProvider, ErrUntrustedProvider, "%s is not a trusted provider", host)
	}

	return u, host, nil
}

func parseAgentHeader(agent string) (string, error) {
	agent = strings.TrimSpace(agent)

	switch {
	case agent == "":
		return "", fmt.Errorf("%w: empty Signature-Agent", ErrMalformedHeader)
	case strings.HasPrefix(agent, `"`):
		item, err := httpsfv.UnmarshalItem([]string{agent})
		if err != nil {
			return "", malformed("Signature-Agent", err)
		}

		s, ok := item.Value.(string)
		if !ok {
			return "", fmt.Errorf("%w: Signature-Agent is not a string", ErrMalformedHeader)
		}
		return s, nil
	case strings.Contains(agent, "://"):
		return agent, nil
	default:
		dict, err := httpsfv.UnmarshalDictionary([]string{agent})
		if err != nil {
			return "", malformed("Signature-Agent", err)
		}

		for _, label := range dict.Names() {
			member, _ := dict.Get(label)
			if item, ok := member.(httpsfv.Item); ok {
				if s, ok := item.Value.(string); ok {
					return s, nil
				}
			}
		}

		return "", fmt.Errorf("%w: no agent URL in Signature-Agent", ErrMalformedHeader)
	}
}
