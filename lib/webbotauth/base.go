package webbotauth

import (
	"fmt"
	"net/http"
	"strings"
)

// Message is the snapshot of a request a signature base is built from.
type Message struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	// RawQuery excludes the leading "?".
	RawQuery string
	Header   http.Header
}

// MessageFromRequest snapshots r. Requests that reached the server over TLS
// get the https scheme, everything else http unless X-Forwarded-Proto says
// otherwise.
func MessageFromRequest(r *http.Request) Message {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(proto)
	}

	return Message{
		Method:    r.Method,
		Scheme:    scheme,
		Authority: r.Host,
		Path:      r.URL.EscapedPath(),
		RawQuery:  r.URL.RawQuery,
		Header:    r.Header,
	}
}

func (m Message) authority() string {
	host := strings.ToLower(m.Authority)
	switch {
	case m.Scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	case m.Scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	}

	return host
}

func (m Message) path() string {
	if m.Path == "" {
		return "/"
	}

	return m.Path
}

func (m Message) requestTarget() string {
	if m.RawQuery == "" {
		return m.path()
	}

	return m.path() + "?" + m.RawQuery
}

func (m Message) componentValue(name string) (string, error) {
	switch name {
	case "@method":
		return m.Method, nil
	case "@scheme":
		return strings.ToLower(m.Scheme), nil
	case "@authority":
		return m.authority(), nil
	case "@path":
		return m.path(), nil
	case "@query":
		return "?" + m.RawQuery, nil
	case "@request-target":
		return m.requestTarget(), nil
	case "@target-uri":
		return strings.ToLower(m.Scheme) + "://" + m.authority() + m.requestTarget(), nil
	}

	if strings.HasPrefix(name, "@") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedComponent, name)
	}

	values := m.Header.Values(name)
	if len(values) == 0 {
		return "", fmt.Errorf("%w: header %s is not present", ErrUnsupportedComponent, name)
	}

	trimmed := make([]string, len(values))
	for i, v := range values {
		trimmed[i] = strings.TrimSpace(v)
	}

	return strings.Join(trimmed, ", "), nil
}

// SignatureBase renders the RFC 9421 signature base for the covered
// components, in order, ending with the @signature-params line whose value is
// signatureParams verbatim. Component names must already be lower case;
// components carrying parameters are not supported.
func SignatureBase(m Message, components []string, signatureParams string) ([]byte, error) {
	var sb strings.Builder
	seen := make(map[string]struct{}, len(components))

	for _, name := range components {
		if name != strings.ToLower(name) {
			return nil, fmt.Errorf("%w: %q is not lower case", ErrUnsupportedComponent, name)
		}

		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %q is covered twice", ErrUnsupportedComponent, name)
		}
		seen[name] = struct{}{}

		if name == "@signature-params" {
			return nil, fmt.Errorf("%w: @signature-params can't be covered", ErrUnsupportedComponent)
		}

		value, err := m.componentValue(name)
		if err != nil {
			return nil, err
		}

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("%w: %q contains a newline", ErrUnsupportedComponent, name)
		}

		fmt.Fprintf(&sb, "%q: %s\n", name, value)
	}

	fmt.Fprintf(&sb, "%q: %s", "@signature-params", signatureParams)

	return []byte(sb.String()), nil
}
