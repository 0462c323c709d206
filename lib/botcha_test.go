package lib

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/internal"
	"github.com/TecharoHQ/botcha/lib/challenge"
	"github.com/TecharoHQ/botcha/lib/challenge/challengetest"
	"github.com/TecharoHQ/botcha/lib/challenge/speed"
	"github.com/TecharoHQ/botcha/lib/challenge/standard"
	"github.com/TecharoHQ/botcha/lib/config"
	"github.com/TecharoHQ/botcha/lib/credential"
	"github.com/TecharoHQ/botcha/lib/store/memory"
	"github.com/TecharoHQ/botcha/lib/webbotauth"
	"github.com/go-jose/go-jose/v4"
)

func init() {
	internal.InitSlog("debug")
}

type fixture struct {
	srv   *Server
	clock *challengetest.Clock
}

func spawnBotcha(t *testing.T, opts Options) *fixture {
	t.Helper()

	clock := challengetest.NewClock()

	if opts.Backend == nil {
		opts.Backend = memory.New()
	}

	if opts.Keys.HS256Secret == nil && opts.Keys.ED25519PrivateKey == nil {
		opts.Keys.HS256Secret = []byte("correct horse battery staple")
	}

	opts.Clock = clock.Now

	s, err := New(t.Context(), opts)
	if err != nil {
		t.Fatalf("can't construct lib.Server: %v", err)
	}

	return &fixture{srv: s, clock: clock}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var result T
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("can't decode response %q: %v", rec.Body.String(), err)
	}

	return result
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("wanted status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}

	resp := decode[errorResponse](t, rec)
	if resp.Error != code {
		t.Fatalf("wanted error %q, got %q", code, resp.Error)
	}

	if resp.Message == "" {
		t.Error("error response has no message")
	}

	return resp
}

func (f *fixture) makeChallenge(t *testing.T, query string) challenge.Public {
	t.Helper()

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/v1/challenges?"+query, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("can't make challenge: %d %s", rec.Code, rec.Body.String())
	}

	return decode[challenge.Public](t, rec)
}

func speedAnswers(t *testing.T, chall challenge.Public) string {
	t.Helper()

	answers := make([]string, len(chall.Problems))
	for i, p := range chall.Problems {
		answers[i] = speed.Answer(p)
	}

	result, err := json.Marshal(answers)
	if err != nil {
		t.Fatal(err)
	}

	return string(result)
}

func verifyRequestWithHeaders(id, answers string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/challenges/verify", nil)
	req.Header.Set(botcha.HeaderChallengeID, id)
	req.Header.Set(botcha.HeaderAnswers, answers)
	return req
}

// passSpeed solves a speed challenge and returns the verify response.
func (f *fixture) passSpeed(t *testing.T, mutate func(*http.Request)) verifyResponse {
	t.Helper()

	chall := f.makeChallenge(t, "kind=speed")
	req := verifyRequestWithHeaders(chall.ID, speedAnswers(t, chall))
	if mutate != nil {
		mutate(req)
	}

	rec := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge not passed: %d %s", rec.Code, rec.Body.String())
	}

	return decode[verifyResponse](t, rec)
}

func protectedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSpeedChallengeFlow(t *testing.T) {
	f := spawnBotcha(t, Options{})

	chall := f.makeChallenge(t, "kind=speed")

	if len(chall.Problems) != speed.Count {
		t.Fatalf("wanted %d problems, got %d", speed.Count, len(chall.Problems))
	}

	if chall.TimeLimitMs != speed.TimeLimit.Milliseconds() {
		t.Errorf("wanted time limit %d, got %d", speed.TimeLimit.Milliseconds(), chall.TimeLimitMs)
	}

	f.clock.Advance(137 * time.Millisecond)

	req := verifyRequestWithHeaders(chall.ID, speedAnswers(t, chall))
	req.URL.RawQuery = "app_id=app_42"

	rec := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge not passed: %d %s", rec.Code, rec.Body.String())
	}

	resp := decode[verifyResponse](t, rec)

	if !resp.Verified || resp.Token == "" || resp.RefreshToken == "" || resp.Badge == "" {
		t.Fatalf("incomplete verify response: %+v", resp)
	}

	if resp.SolveTimeMs == nil || *resp.SolveTimeMs != 137 {
		t.Errorf("wanted solve time 137, got: %v", resp.SolveTimeMs)
	}

	if resp.ExpiresIn != int64(botcha.DefaultAccessTokenExpiration.Seconds()) {
		t.Errorf("wanted expires_in %d, got %d", int64(botcha.DefaultAccessTokenExpiration.Seconds()), resp.ExpiresIn)
	}

	rec = f.do(t, protectedRequest(resp.Token))
	if rec.Code != http.StatusOK {
		t.Fatalf("access token refused: %d %s", rec.Code, rec.Body.String())
	}

	prot := decode[struct {
		Subject    string                `json:"subject"`
		Provenance credential.Provenance `json:"provenance"`
		AppID      string                `json:"app_id"`
	}](t, rec)

	if prot.Subject != chall.ID || prot.Provenance != credential.ProvenanceChallenge || prot.AppID != "app_42" {
		t.Errorf("wrong claims on protected route: %+v", prot)
	}

	// challenges are single use
	rec = f.do(t, verifyRequestWithHeaders(chall.ID, speedAnswers(t, chall)))
	wantError(t, rec, http.StatusNotFound, string(botcha.KindChallengeNotFoundOrExpired))
}

func TestStandardChallengeJSONBody(t *testing.T) {
	f := spawnBotcha(t, Options{})

	chall := f.makeChallenge(t, "kind=standard&difficulty=easy")

	if chall.Puzzle == "" || chall.Hint == "" {
		t.Fatalf("standard challenge is missing its puzzle: %+v", chall)
	}

	body, err := json.Marshal(map[string]any{
		"id":      chall.ID,
		"answers": standard.Answer(standard.Tiers[challenge.DifficultyEasy].Primes),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/v1/challenges/verify", strings.NewReader(string(body))))
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge not passed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestTokenExchangeWithBodyBinding(t *testing.T) {
	f := spawnBotcha(t, Options{})

	for _, tt := range []struct {
		name         string
		challenge    string
		verify       string
		query        string
		wantAppID    string
		bodyAppID    string
		bodyAudience string
	}{
		{name: "sdk paths", challenge: "/v1/token", verify: "/v1/token/verify", bodyAudience: "api.example.com", bodyAppID: "app_abc123", wantAppID: "app_abc123"},
		{name: "challenge paths", challenge: "/v1/challenges", verify: "/v1/challenges/verify", bodyAudience: "api.example.com", bodyAppID: "app_abc123", wantAppID: "app_abc123"},
		{name: "query app id wins", challenge: "/v1/token", verify: "/v1/token/verify", query: "?app_id=app_query", bodyAudience: "api.example.com", bodyAppID: "app_body", wantAppID: "app_query"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, httptest.NewRequest(http.MethodGet, tt.challenge+"?app_id="+tt.bodyAppID, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("can't make challenge: %d %s", rec.Code, rec.Body.String())
			}

			chall := decode[challenge.Public](t, rec)
			if chall.Kind != challenge.KindSpeed || len(chall.Problems) != speed.Count {
				t.Fatalf("wanted a speed challenge, got: %+v", chall)
			}

			answers := make([]string, len(chall.Problems))
			for i, p := range chall.Problems {
				answers[i] = speed.Answer(p)
			}

			rec = f.do(t, postJSON(t, tt.verify+tt.query, map[string]any{
				"id":       chall.ID,
				"answers":  answers,
				"audience": tt.bodyAudience,
				"app_id":   tt.bodyAppID,
			}))
			if rec.Code != http.StatusOK {
				t.Fatalf("challenge not passed: %d %s", rec.Code, rec.Body.String())
			}

			resp := decode[verifyResponse](t, rec)

			ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, _ := CredentialFromContext(r.Context())
				if claims.AppID != tt.wantAppID {
					t.Errorf("wanted app_id %q, got %q", tt.wantAppID, claims.AppID)
				}
				w.WriteHeader(http.StatusTeapot)
			})

			rec = httptest.NewRecorder()
			f.srv.RequireCredential(GuardOptions{Audience: tt.bodyAudience}, ok).ServeHTTP(rec, protectedRequest(resp.Token))
			if rec.Code != http.StatusTeapot {
				t.Fatalf("token not accepted for audience %q: %d %s", tt.bodyAudience, rec.Code, rec.Body.String())
			}

			rec = httptest.NewRecorder()
			f.srv.RequireCredential(GuardOptions{Audience: "other.example.com"}, ok).ServeHTTP(rec, protectedRequest(resp.Token))
			wantError(t, rec, http.StatusUnauthorized, string(botcha.KindAudienceMismatch))
		})
	}
}

func TestChallengeFailures(t *testing.T) {
	f := spawnBotcha(t, Options{})

	t.Run("wrong answer", func(t *testing.T) {
		chall := f.makeChallenge(t, "kind=speed")

		answers := make([]string, len(chall.Problems))
		for i, p := range chall.Problems {
			answers[i] = speed.Answer(p)
		}
		answers[2] = "00000000"

		raw, _ := json.Marshal(answers)
		resp := wantError(t, f.do(t, verifyRequestWithHeaders(chall.ID, string(raw))), http.StatusForbidden, string(botcha.KindAnswerMismatch))

		if resp.Index == nil || *resp.Index != 2 {
			t.Errorf("wanted mismatch index 2, got: %v", resp.Index)
		}
	})

	t.Run("too few answers", func(t *testing.T) {
		chall := f.makeChallenge(t, "kind=speed")
		wantError(t, f.do(t, verifyRequestWithHeaders(chall.ID, `["a"]`)), http.StatusForbidden, string(botcha.KindAnswerCountMismatch))
	})

	t.Run("too slow", func(t *testing.T) {
		chall := f.makeChallenge(t, "kind=speed")
		f.clock.Advance(speed.TimeLimit + speed.Grace + time.Millisecond)
		wantError(t, f.do(t, verifyRequestWithHeaders(chall.ID, speedAnswers(t, chall))), http.StatusForbidden, string(botcha.KindTooSlow))
	})

	t.Run("garbage answers burn the challenge", func(t *testing.T) {
		chall := f.makeChallenge(t, "kind=speed")
		wantError(t, f.do(t, verifyRequestWithHeaders(chall.ID, "not json")), http.StatusBadRequest, "InvalidRequest")
		wantError(t, f.do(t, verifyRequestWithHeaders(chall.ID, speedAnswers(t, chall))), http.StatusNotFound, string(botcha.KindChallengeNotFoundOrExpired))
	})

	t.Run("unknown id", func(t *testing.T) {
		wantError(t, f.do(t, verifyRequestWithHeaders("nope", `[]`)), http.StatusNotFound, string(botcha.KindChallengeNotFoundOrExpired))
	})

	t.Run("no id", func(t *testing.T) {
		wantError(t, f.do(t, httptest.NewRequest(http.MethodPost, "/v1/challenges/verify", nil)), http.StatusBadRequest, "InvalidRequest")
	})

	t.Run("unknown kind", func(t *testing.T) {
		wantError(t, f.do(t, httptest.NewRequest(http.MethodGet, "/v1/challenges?kind=captcha", nil)), http.StatusBadRequest, "UnknownChallengeKind")
	})

	t.Run("unknown difficulty", func(t *testing.T) {
		wantError(t, f.do(t, httptest.NewRequest(http.MethodGet, "/v1/challenges?kind=standard&difficulty=nightmare", nil)), http.StatusBadRequest, "InvalidRequest")
	})
}

func TestLocalizedErrors(t *testing.T) {
	f := spawnBotcha(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/challenges/verify", nil)
	req.Header.Set(botcha.HeaderChallengeID, "nope")
	req.Header.Set("Accept-Language", "de")

	resp := wantError(t, f.do(t, req), http.StatusNotFound, string(botcha.KindChallengeNotFoundOrExpired))

	if want := "Die Aufgabe existiert nicht, ist abgelaufen oder wurde bereits verwendet."; resp.Message != want {
		t.Errorf("wanted %q, got %q", want, resp.Message)
	}
}

func TestRequireCredential(t *testing.T) {
	f := spawnBotcha(t, Options{})

	resp := f.passSpeed(t, func(r *http.Request) {
		r.Header.Set(botcha.HeaderAudience, "api.example")
		r.Header.Set(botcha.HeaderBindIP, "true")
		r.Header.Set("X-Real-Ip", "203.0.113.7")
	})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CredentialFromContext(r.Context()); !ok {
			t.Error("claims missing from request context")
		}
		w.WriteHeader(http.StatusTeapot)
	})

	for _, tt := range []struct {
		name   string
		guard  GuardOptions
		token  string
		ip     string
		status int
		code   string
	}{
		{name: "bound and matching", guard: GuardOptions{Audience: "api.example", RequireClientIP: true}, token: resp.Token, ip: "203.0.113.7", status: http.StatusTeapot},
		{name: "no expectations", token: resp.Token, ip: "198.51.100.1", status: http.StatusTeapot},
		{name: "other audience", guard: GuardOptions{Audience: "other.example"}, token: resp.Token, status: http.StatusUnauthorized, code: string(botcha.KindAudienceMismatch)},
		{name: "other ip", guard: GuardOptions{RequireClientIP: true}, token: resp.Token, ip: "198.51.100.1", status: http.StatusUnauthorized, code: string(botcha.KindClientIPMismatch)},
		{name: "refresh token", token: resp.RefreshToken, status: http.StatusUnauthorized, code: string(botcha.KindCredentialTypeMismatch)},
		{name: "garbage", token: "not.a.token", status: http.StatusUnauthorized, code: string(botcha.KindCredentialMalformed)},
		{name: "missing", status: http.StatusUnauthorized, code: "MissingBearerToken"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.ip != "" {
				req.Header.Set("X-Real-Ip", tt.ip)
			}

			rec := httptest.NewRecorder()
			f.srv.RequireCredential(tt.guard, ok).ServeHTTP(rec, req)

			if tt.code == "" {
				if rec.Code != tt.status {
					t.Fatalf("wanted status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
				}
				return
			}

			wantError(t, rec, tt.status, tt.code)

			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("no WWW-Authenticate challenge on rejection")
			}
		})
	}
}

func TestSpoofedRealIPWithRemoteAddress(t *testing.T) {
	f := spawnBotcha(t, Options{})

	bound := f.passSpeed(t, func(r *http.Request) {
		r.RemoteAddr = "203.0.113.7:40000"
		r.Header.Set(botcha.HeaderBindIP, "true")
	})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	guarded := f.srv.RequireCredential(GuardOptions{RequireClientIP: true}, ok)

	for _, tt := range []struct {
		name       string
		remoteAddr string
		sent       string
		status     int
	}{
		{name: "bound peer", remoteAddr: "203.0.113.7:40001", status: http.StatusTeapot},
		{name: "bound peer spoofing another address", remoteAddr: "203.0.113.7:40001", sent: "198.51.100.1", status: http.StatusTeapot},
		{name: "other peer claiming the bound address", remoteAddr: "198.51.100.1:40000", sent: "203.0.113.7", status: http.StatusUnauthorized},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var h http.Handler = guarded
			h = internal.RemoteXRealIP(true, "tcp", h)
			h = internal.XForwardedForToXRealIP(h)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("Authorization", "Bearer "+bound.Token)
			if tt.sent != "" {
				req.Header.Set("X-Real-Ip", tt.sent)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if tt.status == http.StatusUnauthorized {
				wantError(t, rec, tt.status, string(botcha.KindClientIPMismatch))
				return
			}

			if rec.Code != tt.status {
				t.Fatalf("wanted status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestExpiredCredential(t *testing.T) {
	f := spawnBotcha(t, Options{})
	resp := f.passSpeed(t, nil)

	f.clock.Advance(botcha.DefaultAccessTokenExpiration + time.Minute)

	wantError(t, f.do(t, protectedRequest(resp.Token)), http.StatusUnauthorized, string(botcha.KindCredentialExpired))
}

func postJSON(t *testing.T, path string, v any) *http.Request {
	t.Helper()

	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRefreshAndRevoke(t *testing.T) {
	f := spawnBotcha(t, Options{})
	resp := f.passSpeed(t, nil)

	rec := f.do(t, postJSON(t, "/v1/token/refresh", refreshRequest{RefreshToken: resp.RefreshToken}))
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", rec.Code, rec.Body.String())
	}

	refreshed := decode[refreshResponse](t, rec)
	if refreshed.AccessToken == "" || refreshed.AccessToken == resp.Token {
		t.Fatalf("refresh did not mint a new token: %+v", refreshed)
	}

	if rec := f.do(t, protectedRequest(refreshed.AccessToken)); rec.Code != http.StatusOK {
		t.Fatalf("refreshed token refused: %d %s", rec.Code, rec.Body.String())
	}

	wantError(t, f.do(t, postJSON(t, "/v1/token/refresh", refreshRequest{RefreshToken: resp.Token})), http.StatusUnauthorized, string(botcha.KindCredentialTypeMismatch))

	rec = f.do(t, postJSON(t, "/v1/token/revoke", revokeRequest{Token: resp.Token}))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke failed: %d %s", rec.Code, rec.Body.String())
	}

	wantError(t, f.do(t, protectedRequest(resp.Token)), http.StatusUnauthorized, string(botcha.KindCredentialRevoked))

	if rec := f.do(t, postJSON(t, "/v1/token/revoke", revokeRequest{Token: resp.RefreshToken})); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke failed: %d %s", rec.Code, rec.Body.String())
	}

	wantError(t, f.do(t, postJSON(t, "/v1/token/refresh", refreshRequest{RefreshToken: resp.RefreshToken})), http.StatusUnauthorized, string(botcha.KindCredentialRevoked))

	wantError(t, f.do(t, postJSON(t, "/v1/token/revoke", revokeRequest{Token: "garbage"})), http.StatusUnauthorized, string(botcha.KindCredentialMalformed))
	wantError(t, f.do(t, postJSON(t, "/v1/token/refresh", map[string]string{})), http.StatusBadRequest, "InvalidRequest")
}

func TestBadges(t *testing.T) {
	f := spawnBotcha(t, Options{})
	resp := f.passSpeed(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/v1/badges/"+resp.Badge, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("badge refused: %d %s", rec.Code, rec.Body.String())
	}

	payload := decode[struct {
		Method      string `json:"method"`
		SolveTimeMs *int64 `json:"solveTimeMs"`
	}](t, rec)

	if payload.Method != string(challenge.KindSpeed) || payload.SolveTimeMs == nil {
		t.Errorf("wrong badge payload: %+v", payload)
	}

	tampered := resp.Badge[:len(resp.Badge)-2] + "AA"
	if tampered == resp.Badge {
		tampered = resp.Badge[:len(resp.Badge)-2] + "BB"
	}

	wantError(t, f.do(t, httptest.NewRequest(http.MethodGet, "/v1/badges/"+tampered, nil)), http.StatusNotFound, string(botcha.KindBadgeTokenInvalid))
}

func TestVerifyAgent(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	body, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: pub, KeyID: "agent-key"}}})
	if err != nil {
		t.Fatal(err)
	}

	dir := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", webbotauth.DirectoryMediaType)
		w.Write(body)
	}))
	t.Cleanup(dir.Close)

	u, err := url.Parse(dir.URL)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.WebBotAuth.TrustedProviders = []string{u.Hostname()}

	f := spawnBotcha(t, Options{Config: cfg, HTTPClient: dir.Client()})

	signed := func(t *testing.T) *http.Request {
		t.Helper()

		req := httptest.NewRequest(http.MethodPost, "https://botcha.example/v1/agents/verify", nil)
		req.Header.Set(botcha.HeaderSignatureAgent, fmt.Sprintf("%q", dir.URL))

		components := []string{"@method", "@authority", "@path", "signature-agent"}
		params := fmt.Sprintf(`("@method" "@authority" "@path" "signature-agent");created=%d;keyid="agent-key";alg="ed25519";tag="web-bot-auth"`, f.clock.Now().Unix())

		base, err := webbotauth.SignatureBase(webbotauth.MessageFromRequest(req), components, params)
		if err != nil {
			t.Fatal(err)
		}

		req.Header.Set(botcha.HeaderSignatureInput, "sig1="+params)
		req.Header.Set(botcha.HeaderSignature, "sig1=:"+base64.StdEncoding.EncodeToString(ed25519.Sign(priv, base))+":")

		return req
	}

	t.Run("valid", func(t *testing.T) {
		rec := f.do(t, signed(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("agent refused: %d %s", rec.Code, rec.Body.String())
		}

		resp := decode[verifyResponse](t, rec)
		if resp.Provider != u.Hostname() || resp.Token == "" || resp.SolveTimeMs != nil {
			t.Fatalf("wrong agent response: %+v", resp)
		}

		rec = f.do(t, protectedRequest(resp.Token))
		if rec.Code != http.StatusOK {
			t.Fatalf("agent token refused: %d %s", rec.Code, rec.Body.String())
		}

		prot := decode[struct {
			Provenance  credential.Provenance `json:"provenance"`
			SolveTimeMs *int64                `json:"solveTimeMs"`
		}](t, rec)

		if prot.Provenance != credential.ProvenanceSignature || prot.SolveTimeMs != nil {
			t.Errorf("wrong claims for agent token: %+v", prot)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		req := signed(t)
		req.URL.Path = "/v1/agents/verify/"
		req.Header.Set(botcha.HeaderSignatureAgent, fmt.Sprintf("%q", dir.URL+"/"))

		rec := httptest.NewRecorder()
		f.srv.VerifyAgent(rec, req)
		wantError(t, rec, http.StatusUnauthorized, string(botcha.KindSignatureMismatch))
	})

	t.Run("no headers", func(t *testing.T) {
		wantError(t, f.do(t, httptest.NewRequest(http.MethodPost, "/v1/agents/verify", nil)), http.StatusUnauthorized, string(botcha.KindSignatureHeadersMissing))
	})

	t.Run("untrusted", func(t *testing.T) {
		req := signed(t)
		req.Header.Set(botcha.HeaderSignatureAgent, `"https://evil.example"`)

		wantError(t, f.do(t, req), http.StatusForbidden, string(botcha.KindUntrustedProvider))
	})
}
