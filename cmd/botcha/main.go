package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/data"
	"github.com/TecharoHQ/botcha/internal"
	libbotcha "github.com/TecharoHQ/botcha/lib"
	"github.com/TecharoHQ/botcha/lib/credential"
	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bind                     = flag.String("bind", ":8923", "network address to bind HTTP to")
	bindNetwork              = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	badgeSecret              = flag.String("badge-secret", "", "secret used to sign badges, if not set a random one will be assigned")
	configFname              = flag.String("config-fname", "", "full path to BOTCHA config file (defaults to a sensible built-in config)")
	dumpConfig               = flag.Bool("dump-config", false, "print the built-in config file and exit")
	hs256Secret              = flag.String("hs256-secret", "", "secret used to sign credentials, uses ed25519 if not set")
	ed25519PrivateKeyHex     = flag.String("ed25519-private-key-hex", "", "private key used to sign credentials, if not set a random one will be assigned")
	ed25519PrivateKeyHexFile = flag.String("ed25519-private-key-hex-file", "", "file name containing value for ed25519-private-key-hex")
	metricsBind              = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	useRemoteAddress         = flag.Bool("use-remote-address", false, "bind credentials to the socket peer address instead of X-Real-Ip; required when BOTCHA is not behind a trusted reverse proxy")
	slogLevel                = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	healthcheck              = flag.Bool("healthcheck", false, "run a health check against BOTCHA")
	versionFlag              = flag.Bool("version", false, "print BOTCHA version")
)

func keyFromHex(value string) (ed25519.PrivateKey, error) {
	keyBytes, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("supplied key is not hex-encoded: %w", err)
	}

	if len(keyBytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("supplied key is not %d bytes long, got %d bytes", ed25519.SeedSize, len(keyBytes))
	}

	return ed25519.NewKeyFromSeed(keyBytes), nil
}

// loadKeys works out the credential signing keys from the flags. Giving more
// than one source is fatal.
func loadKeys() (credential.Keys, error) {
	var keys credential.Keys

	switch {
	case *hs256Secret != "" && (*ed25519PrivateKeyHex != "" || *ed25519PrivateKeyHexFile != ""):
		return keys, errors.New("do not specify both HS256 and ED25519 secrets")
	case *hs256Secret != "":
		keys.HS256Secret = []byte(*hs256Secret)
	case *ed25519PrivateKeyHex != "" && *ed25519PrivateKeyHexFile != "":
		return keys, errors.New("do not specify both ED25519_PRIVATE_KEY_HEX and ED25519_PRIVATE_KEY_HEX_FILE")
	case *ed25519PrivateKeyHex != "":
		priv, err := keyFromHex(*ed25519PrivateKeyHex)
		if err != nil {
			return keys, fmt.Errorf("failed to parse and validate ED25519_PRIVATE_KEY_HEX: %w", err)
		}
		keys.ED25519PrivateKey = priv
	case *ed25519PrivateKeyHexFile != "":
		hexFile, err := os.ReadFile(*ed25519PrivateKeyHexFile)
		if err != nil {
			return keys, fmt.Errorf("failed to read ED25519_PRIVATE_KEY_HEX_FILE %s: %w", *ed25519PrivateKeyHexFile, err)
		}

		priv, err := keyFromHex(string(bytes.TrimSpace(hexFile)))
		if err != nil {
			return keys, fmt.Errorf("failed to parse and validate content of ED25519_PRIVATE_KEY_HEX_FILE: %w", err)
		}
		keys.ED25519PrivateKey = priv
	default:
		slog.Warn("generating random credential key, tokens will not survive a restart and will not be accepted by other BOTCHA instances")
	}

	return keys, nil
}

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *metricsBind + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("BOTCHA", botcha.Version)
		return
	}

	if *dumpConfig {
		os.Stdout.Write(data.DefaultConfig)
		return
	}

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	internal.InitSlog(*slogLevel)

	cfg, err := libbotcha.LoadConfigOrDefault(*configFname)
	if err != nil {
		log.Fatalf("can't load config file: %v", err)
	}

	keys, err := loadKeys()
	if err != nil {
		log.Fatal(err)
	}

	if *badgeSecret == "" {
		slog.Warn("BADGE_SECRET is not set, badges will not survive a restart")
	}

	// install signal handler
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := libbotcha.New(ctx, libbotcha.Options{
		Config:      cfg,
		Keys:        keys,
		BadgeSecret: []byte(*badgeSecret),
		HTTPClient:  &http.Client{Timeout: cfg.WebBotAuth.DirectoryTimeout},
	})
	if err != nil {
		log.Fatalf("can't construct libbotcha.Server: %v", err)
	}
	defer s.Close()

	wg := new(sync.WaitGroup)

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler
	h = s
	h = internal.RemoteXRealIP(*useRemoteAddress, *bindNetwork, h)
	h = internal.XForwardedForToXRealIP(h)

	srv := http.Server{Handler: h, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, err := net.Listen(*bindNetwork, *bind)
	if err != nil {
		log.Fatalf("failed to bind to %s: %v", formatURL(*bindNetwork, *bind), err)
	}

	slog.Info(
		"listening",
		"url", formatURL(*bindNetwork, *bind),
		"version", botcha.Version,
		"use-remote-address", *useRemoteAddress,
		"store", cfg.Store.Backend,
		"trusted-providers", cfg.WebBotAuth.TrustedProviders,
		"access-ttl", cfg.Credentials.AccessTTL,
		"refresh-ttl", cfg.Credentials.RefreshTTL,
		"fail-open-on-revocation-error", cfg.Credentials.FailOpenOnRevocationError,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func formatURL(network, address string) string {
	switch network {
	case "unix":
		return "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") {
			return "http://localhost" + address
		}

		return "http://" + address
	default:
		return fmt.Sprintf("(%s) %s", network, address)
	}
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, err := net.Listen("tcp", *metricsBind)
	if err != nil {
		log.Fatalf("failed to bind metrics to %s: %v", *metricsBind, err)
	}
	slog.Debug("listening for metrics", "url", formatURL("tcp", *metricsBind))

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
