package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/TecharoHQ/botcha"
	"github.com/TecharoHQ/botcha/internal"
	"github.com/TecharoHQ/botcha/lib/badge"
	"github.com/TecharoHQ/botcha/lib/challenge"
	"github.com/TecharoHQ/botcha/lib/credential"
	"github.com/TecharoHQ/botcha/lib/localization"
)

// maxBodySize bounds every JSON request body.
const maxBodySize = 64 << 10

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Index   *int   `json:"index,omitempty"`
}

type verifyRequest struct {
	ID       string          `json:"id"`
	Answers  json.RawMessage `json:"answers"`
	Audience string          `json:"audience,omitempty"`
	AppID    string          `json:"app_id,omitempty"`
}

type verifyResponse struct {
	Verified         bool   `json:"verified"`
	Token            string `json:"token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	SolveTimeMs      *int64 `json:"solveTimeMs,omitempty"`
	Agent            string `json:"agent,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Badge            string `json:"badge,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type revokeRequest struct {
	Token string `json:"token"`
}

// statusFor maps a failure kind to the HTTP status it is reported with.
func statusFor(kind botcha.Kind) int {
	switch kind {
	case botcha.KindChallengeNotFoundOrExpired, botcha.KindBadgeTokenInvalid:
		return http.StatusNotFound
	case botcha.KindAnswerCountMismatch, botcha.KindAnswerMismatch, botcha.KindTooSlow, botcha.KindUntrustedProvider:
		return http.StatusForbidden
	case botcha.KindRevocationCheckFailed:
		return http.StatusServiceUnavailable
	case botcha.KindDirectoryUnavailable:
		return http.StatusBadGateway
	case botcha.KindNone:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondWithStatus(w http.ResponseWriter, r *http.Request, status int, code, messageID string, index int) {
	requestFailures.WithLabelValues(code).Inc()

	resp := errorResponse{
		Error:   code,
		Message: localization.GetLocalizer(r).T(messageID),
	}

	if index >= 0 {
		resp.Index = &index
	}

	writeJSON(w, status, resp)
}

func (s *Server) respondWithKind(w http.ResponseWriter, r *http.Request, kind botcha.Kind, index int) {
	if kind == botcha.KindNone {
		s.respondWithStatus(w, r, http.StatusBadRequest, "InvalidRequest", "invalid_request", -1)
		return
	}

	s.respondWithStatus(w, r, statusFor(kind), string(kind), localization.MessageID(kind), index)
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request) {
	s.respondWithStatus(w, r, http.StatusInternalServerError, "InternalError", "internal_error", -1)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

// binding reads the optional audience and client IP binding a caller asked
// for.
func binding(r *http.Request) (audience, clientIP string) {
	audience = strings.TrimSpace(r.Header.Get(botcha.HeaderAudience))

	if strings.EqualFold(strings.TrimSpace(r.Header.Get(botcha.HeaderBindIP)), "true") {
		clientIP = internal.ClientIP(r)
	}

	return audience, clientIP
}

func (s *Server) signBadge(r *http.Request, method string, solveTimeMs *int64) string {
	token, err := s.badges.Sign(badge.Payload{
		Method:      method,
		SolveTimeMs: solveTimeMs,
		VerifiedAt:  s.now().UTC(),
	})
	if err != nil {
		internal.GetRequestLogger(r).Error("can't sign badge", "err", err)
		return ""
	}

	badgesIssued.WithLabelValues(method).Inc()
	return token
}

// MakeChallenge issues a new challenge of the requested kind.
func (s *Server) MakeChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	q := r.URL.Query()
	kind := challenge.Kind(q.Get("kind"))
	if kind == "" {
		kind = challenge.KindSpeed
	}

	if _, ok := challenge.Get(kind); !ok {
		lg.Debug("unknown challenge kind", "kind", kind)
		s.respondWithStatus(w, r, http.StatusBadRequest, "UnknownChallengeKind", "unknown_challenge_kind", -1)
		return
	}

	chall, err := s.challenges.Generate(r.Context(), kind, challenge.Difficulty(q.Get("difficulty")))
	if err != nil {
		var cerr *challenge.Error
		if errors.As(err, &cerr) {
			lg.Debug("can't issue challenge", "err", err)
			s.respondWithKind(w, r, cerr.Kind, -1)
			return
		}

		lg.Error("can't issue challenge", "err", err)
		s.respondWithError(w, r)
		return
	}

	writeJSON(w, http.StatusOK, chall.Public())
}

// PassChallenge checks the answers to a challenge and, when they are right,
// hands out a credential pair and a badge. The challenge id and answers come
// from the X-Botcha-Challenge-Id and X-Botcha-Answers headers, or from a
// JSON body {"id": ..., "answers": ..., "audience": ..., "app_id": ...}.
// Headers and the app_id query parameter take precedence over the body.
func (s *Server) PassChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	id := strings.TrimSpace(r.Header.Get(botcha.HeaderChallengeID))
	raw := r.Header.Get(botcha.HeaderAnswers)

	var req verifyRequest
	if id == "" {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			lg.Debug("can't decode verify request", "err", err)
			s.respondWithKind(w, r, botcha.KindNone, -1)
			return
		}

		id, raw = req.ID, string(req.Answers)
	}

	if id == "" {
		s.respondWithKind(w, r, botcha.KindNone, -1)
		return
	}

	outcome, err := s.challenges.VerifyRaw(r.Context(), lg, id, raw)
	if err != nil {
		var cerr *challenge.Error
		if errors.As(err, &cerr) {
			lg.Debug("challenge validate call failed", "err", err)
			s.respondWithKind(w, r, cerr.Kind, cerr.Index)
			return
		}

		lg.Error("can't verify challenge", "err", err)
		s.respondWithError(w, r)
		return
	}

	solveTimeMs := outcome.SolveTimeMs()
	audience, clientIP := binding(r)
	if audience == "" {
		audience = strings.TrimSpace(req.Audience)
	}

	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		appID = req.AppID
	}

	pair, err := s.issuer.IssuePair(r.Context(), credential.IssueInput{
		Subject:     outcome.Challenge.ID,
		Provenance:  credential.ProvenanceChallenge,
		SolveTimeMs: &solveTimeMs,
		Audience:    audience,
		ClientIP:    clientIP,
		AppID:       appID,
	})
	if err != nil {
		lg.Error("can't issue credentials", "err", err)
		s.respondWithError(w, r)
		return
	}

	lg.Debug("challenge passed", "challenge", outcome.Challenge.ID, "solve_time_ms", solveTimeMs)

	writeJSON(w, http.StatusOK, verifyResponse{
		Verified:         true,
		Token:            pair.Access.Encoded,
		ExpiresIn:        int64(pair.Access.ExpiresIn.Seconds()),
		RefreshToken:     pair.Refresh.Encoded,
		RefreshExpiresIn: int64(pair.Refresh.ExpiresIn.Seconds()),
		SolveTimeMs:      &solveTimeMs,
		Badge:            s.signBadge(r, string(outcome.Challenge.Kind), &solveTimeMs),
	})
}

// RefreshToken trades a refresh token for a new access token.
func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req refreshRequest
	if err := decodeBody(w, r, &req); err != nil || req.RefreshToken == "" {
		s.respondWithKind(w, r, botcha.KindNone, -1)
		return
	}

	audience, clientIP := binding(r)

	tok, err := s.issuer.Refresh(r.Context(), req.RefreshToken, credential.RefreshInput{
		Audience: audience,
		ClientIP: clientIP,
	})
	if err != nil {
		if kind := credential.KindOf(err); kind != botcha.KindNone {
			lg.Debug("refresh rejected", "err", err, "token", internal.FastHash(req.RefreshToken))
			s.respondWithKind(w, r, kind, -1)
			return
		}

		lg.Error("can't refresh token", "err", err)
		s.respondWithError(w, r)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: tok.Encoded,
		ExpiresIn:   int64(tok.ExpiresIn.Seconds()),
	})
}

// RevokeToken revokes an access or refresh token until it would have expired
// anyway.
func (s *Server) RevokeToken(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req revokeRequest
	if err := decodeBody(w, r, &req); err != nil || req.Token == "" {
		s.respondWithKind(w, r, botcha.KindNone, -1)
		return
	}

	claims, err := s.verifier.Parse(req.Token)
	if err != nil {
		lg.Debug("can't revoke unparseable token", "err", err)
		s.respondWithKind(w, r, credential.KindOf(err), -1)
		return
	}

	if err := s.revocations.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		lg.Error("can't revoke token", "jti", claims.ID, "err", err)
		s.respondWithError(w, r)
		return
	}

	lg.Info("revoked token", "jti", claims.ID, "type", claims.Type, "sub", claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}

// VerifyAgent checks the Web Bot Auth signature on the request and mints a
// signature provenance access token for the trusted agent.
func (s *Server) VerifyAgent(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	res := s.agents.VerifyRequest(r.Context(), r)
	if !res.Valid {
		lg.Debug("agent signature rejected", "kind", res.Kind, "reason", res.Reason)
		s.respondWithKind(w, r, res.Kind, -1)
		return
	}

	audience, clientIP := binding(r)

	tok, err := s.issuer.IssueAccess(r.Context(), credential.IssueInput{
		Subject:    res.Agent,
		Provenance: credential.ProvenanceSignature,
		Audience:   audience,
		ClientIP:   clientIP,
		AppID:      r.URL.Query().Get("app_id"),
	})
	if err != nil {
		lg.Error("can't issue credentials", "err", err)
		s.respondWithError(w, r)
		return
	}

	lg.Debug("agent verified", "agent", res.Agent, "key_id", res.KeyID)

	writeJSON(w, http.StatusOK, verifyResponse{
		Verified:  true,
		Token:     tok.Encoded,
		ExpiresIn: int64(tok.ExpiresIn.Seconds()),
		Agent:     res.Agent,
		Provider:  res.Host,
		Badge:     s.signBadge(r, "web-bot-auth", nil),
	})
}

// GetBadge shows what a badge token attests to.
func (s *Server) GetBadge(w http.ResponseWriter, r *http.Request) {
	payload, err := s.badges.Verify(r.PathValue("token"))
	if err != nil {
		internal.GetRequestLogger(r).Debug("badge rejected", "err", err)
		s.respondWithKind(w, r, botcha.KindBadgeTokenInvalid, -1)
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

type credentialContextKey struct{}

// CredentialFromContext returns the claims RequireCredential put on the
// request context.
func CredentialFromContext(ctx context.Context) (*credential.Claims, bool) {
	claims, ok := ctx.Value(credentialContextKey{}).(*credential.Claims)
	return claims, ok
}

// GuardOptions are what RequireCredential expects of every token.
type GuardOptions struct {
	Audience        string
	RequireClientIP bool
}

// RequireCredential only lets requests with a valid access token through.
func (s *Server) RequireCredential(opts GuardOptions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lg := internal.GetRequestLogger(r)

		token, ok := credential.ExtractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="botcha"`)
			s.respondWithStatus(w, r, http.StatusUnauthorized, "MissingBearerToken", "missing_bearer_token", -1)
			return
		}

		vopts := credential.VerifyOptions{
			Audience:        opts.Audience,
			RequireClientIP: opts.RequireClientIP,
		}

		if opts.RequireClientIP {
			vopts.ClientIP = internal.ClientIP(r)
		}

		res := s.verifier.Verify(r.Context(), token, vopts)
		if !res.Valid {
			lg.Debug("credential rejected", "kind", res.Kind, "reason", res.Reason)
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="botcha", error="invalid_token", error_description=%q`, res.Kind))
			s.respondWithKind(w, r, res.Kind, -1)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialContextKey{}, res.Claims)))
	})
}

// Protected is the sample route behind RequireCredential.
func (s *Server) Protected(w http.ResponseWriter, r *http.Request) {
	claims, ok := CredentialFromContext(r.Context())
	if !ok {
		s.respondWithError(w, r)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message     string                `json:"message"`
		Subject     string                `json:"subject"`
		Provenance  credential.Provenance `json:"provenance"`
		SolveTimeMs *int64                `json:"solveTimeMs,omitempty"`
		AppID       string                `json:"app_id,omitempty"`
	}{
		Message:     localization.GetLocalizer(r).T("verified"),
		Subject:     claims.Subject,
		Provenance:  claims.Provenance,
		SolveTimeMs: claims.SolveTimeMs,
		AppID:       claims.AppID,
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
