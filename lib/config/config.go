// Package config loads the BOTCHA configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/lib/challenge"
	"github.com/TecharoHQ/botcha/lib/webbotauth"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var (
	ErrDurationDoesNotParse     = errors.New("config: duration does not parse, see https://pkg.go.dev/time#ParseDuration (formatted like 5m -> 5 minutes, 2h -> 2 hours, etc)")
	ErrDurationNotPositive      = errors.New("config: duration must be positive")
	ErrRefreshShorterThanAccess = errors.New("config.Credentials: refreshTTL must be longer than accessTTL")
	ErrNoTrustedProviders       = errors.New("config.WebBotAuth: trustedProviders is empty")
)

type challengesFileConfig struct {
	Retention     string `json:"retention"`
	SweepInterval string `json:"sweepInterval"`
}

type credentialsFileConfig struct {
	Issuer                    string `json:"issuer"`
	AccessTTL                 string `json:"accessTTL"`
	RefreshTTL                string `json:"refreshTTL"`
	FailOpenOnRevocationError *bool  `json:"failOpenOnRevocationError"`
}

type webBotAuthFileConfig struct {
	TrustedProviders []string `json:"trustedProviders"`
	DirectoryTimeout string   `json:"directoryTimeout"`
}

type fileConfig struct {
	Store       *Store                `json:"store"`
	Challenges  challengesFileConfig  `json:"challenges"`
	Credentials credentialsFileConfig `json:"credentials"`
	WebBotAuth  webBotAuthFileConfig  `json:"webBotAuth"`
}

type Challenges struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

type Credentials struct {
	Issuer                    string
	AccessTTL                 time.Duration
	RefreshTTL                time.Duration
	FailOpenOnRevocationError bool
}

type WebBotAuth struct {
	TrustedProviders []string
	DirectoryTimeout time.Duration
}

// Config is the validated configuration with every default filled in.
type Config struct {
	Store       Store
	Challenges  Challenges
	Credentials Credentials
	WebBotAuth  WebBotAuth
}

// Default is the configuration used when no file sets anything.
func Default() *Config {
	return &Config{
		Store: Store{Backend: "memory"},
		Challenges: Challenges{
			Retention:     challenge.DefaultRetention,
			SweepInterval: challenge.DefaultSweepInterval,
		},
		Credentials: Credentials{
			Issuer:                    "botcha",
			AccessTTL:                 botcha.DefaultAccessTokenExpiration,
			RefreshTTL:                botcha.DefaultRefreshTokenExpiration,
			FailOpenOnRevocationError: true,
		},
		WebBotAuth: WebBotAuth{
			TrustedProviders: webbotauth.DefaultTrustedProviders,
			DirectoryTimeout: botcha.DefaultDirectoryTimeout,
		},
	}
}

// setDuration parses val into dst, leaving dst alone when val is empty.
func setDuration(field, val string, dst *time.Duration) error {
	if val == "" {
		return nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%w: %s: ParseDuration(%q) returned: %w", ErrDurationDoesNotParse, field, val, err)
	}

	if d <= 0 {
		return fmt.Errorf("%w: %s: %s", ErrDurationNotPositive, field, d)
	}

	*dst = d
	return nil
}

func (c *fileConfig) parse() (*Config, error) {
	result := Default()
	var errs []error

	if c.Store != nil {
		if err := c.Store.Valid(); err != nil {
			errs = append(errs, err)
		}
		result.Store = *c.Store
	}

	for _, d := range []struct {
		field string
		val   string
		dst   *time.Duration
	}{
		{"challenges.retention", c.Challenges.Retention, &result.Challenges.Retention},
		{"challenges.sweepInterval", c.Challenges.SweepInterval, &result.Challenges.SweepInterval},
		{"credentials.accessTTL", c.Credentials.AccessTTL, &result.Credentials.AccessTTL},
		{"credentials.refreshTTL", c.Credentials.RefreshTTL, &result.Credentials.RefreshTTL},
		{"webBotAuth.directoryTimeout", c.WebBotAuth.DirectoryTimeout, &result.WebBotAuth.DirectoryTimeout},
	} {
		if err := setDuration(d.field, d.val, d.dst); err != nil {
			errs = append(errs, err)
		}
	}

	if result.Credentials.RefreshTTL <= result.Credentials.AccessTTL {
		errs = append(errs, fmt.Errorf("%w: %s <= %s", ErrRefreshShorterThanAccess, result.Credentials.RefreshTTL, result.Credentials.AccessTTL))
	}

	if c.Credentials.Issuer != "" {
		result.Credentials.Issuer = c.Credentials.Issuer
	}

	if c.Credentials.FailOpenOnRevocationError != nil {
		result.Credentials.FailOpenOnRevocationError = *c.Credentials.FailOpenOnRevocationError
	}

	if c.WebBotAuth.TrustedProviders != nil {
		if len(c.WebBotAuth.TrustedProviders) == 0 {
			errs = append(errs, ErrNoTrustedProviders)
		}

		if _, err := webbotauth.NewRegistry(c.WebBotAuth.TrustedProviders); err != nil {
			errs = append(errs, err)
		}

		result.WebBotAuth.TrustedProviders = c.WebBotAuth.TrustedProviders
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return result, nil
}

func Load(fin io.Reader, fname string) (*Config, error) {
	var c fileConfig

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(&c); err != nil {
		return nil, fmt.Errorf("can't parse config YAML %s: %w", fname, err)
	}

	result, err := c.parse()
	if err != nil {
		return nil, fmt.Errorf("config %s is not valid:\n%w", fname, err)
	}

	return result, nil
}
