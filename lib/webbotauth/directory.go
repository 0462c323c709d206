package webbotauth

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/go-jose/go-jose/v4"
)

const (
	// WellKnownDirectoryPath is fetched when Signature-Agent names only an
	// origin.
	WellKnownDirectoryPath = "/.well-known/http-message-signatures-directory"

	// DirectoryMediaType is the content type directories are served with.
	DirectoryMediaType = "application/http-message-signatures-directory+json"

	maxDirectorySize = 1 << 20
)

// Directory fetches agent key directories. It never retries.
type Directory struct {
	client  *http.Client
	timeout time.Duration
}

func NewDirectory(client *http.Client, timeout time.Duration) *Directory {
	if client == nil {
		client = http.DefaultClient
	}

	if timeout <= 0 {
		timeout = botcha.DefaultDirectoryTimeout
	}

	return &Directory{client: client, timeout: timeout}
}

// DirectoryURL is the URL actually fetched for a Signature-Agent URL.
func DirectoryURL(agent *url.URL) *url.URL {
	result := *agent
	result.Fragment = ""
	if result.Path == "" || result.Path == "/" {
		result.Path = WellKnownDirectoryPath
		result.RawPath = ""
	}

	return &result
}

// Fetch downloads and parses the key set published at agent. Transport
// errors, timeouts, non-2xx responses and bad JSON all count as the
// directory being unavailable.
func (d *Directory) Fetch(ctx context.Context, agent *url.URL) (*jose.JSONWebKeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	u := DirectoryURL(agent)
	start := time.Now()
	defer func() {
		DirectoryFetchDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, wrapf(botcha.KindDirectoryUnavailable, ErrDirectory, "can't build request for %s: %v", u, err)
	}
	req.Header.Set("Accept", DirectoryMediaType+", application/json;q=0.9")
	req.Header.Set("User-Agent", "BOTCHA/"+botcha.Version)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, wrapf(botcha.KindDirectoryUnavailable, ErrDirectory, "%s: %v", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, wrapf(botcha.KindDirectoryUnavailable, ErrDirectory, "%s: status %d", u, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectorySize+1))
	if err != nil {
		return nil, wrapf(botcha.KindDirectoryUnavailable, ErrDirectory, "%s: can't read body: %v", u, err)
	}

	if len(data) > maxDirectorySize {
		return nil, wrapf(botcha.KindDirectoryUnavailable, ErrDirectory, "%s: directory larger than %d bytes", u, maxDirectorySize)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, wrapf(botcha.KindDirectoryUnavailable, ErrDirectory, "%s: can't parse key set: %v", u, err)
	}

	return &set, nil
}

// FindKey selects the public key named by keyID, matching either the JWK kid
// or its base64url RFC 7638 SHA-256 thumbprint.
func FindKey(set *jose.JSONWebKeySet, keyID string) (crypto.PublicKey, error) {
	if keyID == "" {
		return nil, wrapf(botcha.KindSigningKeyNotFound, ErrKeyNotFound, "no keyid in Signature-Input")
	}

	if keys := set.Key(keyID); len(keys) != 0 {
		return publicKey(keys[0]), nil
	}

	for _, jwk := range set.Keys {
		tp, err := jwk.Thumbprint(crypto.SHA256)
		if err != nil {
			continue
		}

		if base64.RawURLEncoding.EncodeToString(tp) == keyID {
			return publicKey(jwk), nil
		}
	}

	return nil, wrapf(botcha.KindSigningKeyNotFound, ErrKeyNotFound, "keyid %q", keyID)
}

func publicKey(jwk jose.JSONWebKey) crypto.PublicKey {
	if !jwk.IsPublic() {
		return jwk.Public().Key
	}

	return jwk.Key
}
