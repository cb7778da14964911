// Package auth obtains platform bearer tokens through the federated
// OIDC/PKCE/SRP exchange and caches the current token for reuse.
//
// The exchange is a strict chain: OIDC discovery, PKCE generation,
// authorization initiation, identity-pool config fetch, SRP login against
// the pool, federated-token exchange for an intermediate code, redemption of
// that code through the broker redirect, and the final token request. The
// identity provider correlates the hops through session cookies, so every
// request of one attempt goes through a shared cookie jar. No individual
// step is retried; a failed attempt is rerun from the top on the next token
// demand.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultClientID is the platform's public OAuth client for CLI use.
	DefaultClientID = "appforge-cli"

	oauthScope     = "openid profile"
	federationHint = "pool"
	stepTimeout    = 30 * time.Second

	targetInitiateAuth     = "AWSCognitoIdentityProviderService.InitiateAuth"
	targetRespondChallenge = "AWSCognitoIdentityProviderService.RespondToAuthChallenge"
)

// Config selects the identity surfaces and credentials for the exchange.
// Hosts may be bare hostnames (https is assumed) or full base URLs.
type Config struct {
	IdentityHost string
	LoginHost    string
	Username     string
	Password     string

	// ClientID and RedirectURI identify the public OAuth client; zero
	// values take the platform defaults.
	ClientID    string
	RedirectURI string

	// TokenTTLFallback applies when the token endpoint omits expires_in.
	TokenTTLFallback time.Duration
}

// Token is a bearer token with its absolute expiry.
type Token struct {
	Value          string
	AbsoluteExpiry time.Time
}

// AuthenticationError is the single error shape the exchange exposes. The
// message is deliberately generic: the chain transits third-party identity
// systems whose responses may carry sensitive detail, so the cause is logged
// inside the package and never attached to the outward error.
type AuthenticationError struct {
	Step string
}

func (e *AuthenticationError) Error() string { return "authentication failed" }

// Exchange runs full authentication attempts. Safe for concurrent use; each
// attempt gets its own cookie jar so stale identity sessions cannot bleed
// between attempts.
type Exchange struct {
	cfg Config
	log *slog.Logger
}

func NewExchange(cfg Config, log *slog.Logger) *Exchange {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = baseURL(cfg.IdentityHost) + "/cli/callback"
	}
	if cfg.TokenTTLFallback <= 0 {
		cfg.TokenTTLFallback = time.Hour
	}
	return &Exchange{cfg: cfg, log: log.With("component", "auth")}
}

// Authenticate runs the whole chain and returns a fresh token.
func (e *Exchange) Authenticate(ctx context.Context) (Token, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return Token{}, fmt.Errorf("cookie jar: %w", err)
	}
	s := &session{
		cfg: e.cfg,
		log: e.log,
		follow: &http.Client{
			Jar:     jar,
			Timeout: stepTimeout,
		},
		noFollow: &http.Client{
			Jar:     jar,
			Timeout: stepTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	return s.run(ctx)
}

// session is one authentication attempt: two HTTP clients over one jar, one
// of them refusing to follow redirects so Location URLs can be inspected.
type session struct {
	cfg      Config
	log      *slog.Logger
	follow   *http.Client
	noFollow *http.Client
}

func (s *session) run(ctx context.Context) (Token, error) {
	doc, err := s.discoverOIDC(ctx)
	if err != nil {
		return Token{}, s.fail("discovery", err)
	}
	pk, err := newPKCE()
	if err != nil {
		return Token{}, s.fail("pkce", err)
	}
	az, err := s.initiateAuthorization(ctx, doc, pk)
	if err != nil {
		return Token{}, s.fail("authorization", err)
	}
	idp, err := s.fetchIdPConfig(ctx)
	if err != nil {
		return Token{}, s.fail("idp-config", err)
	}
	fed, err := s.federatedLogin(ctx, az, idp)
	if err != nil {
		return Token{}, s.fail("federated-login", err)
	}
	code, err := s.exchangeForAuthCode(ctx, az, fed)
	if err != nil {
		return Token{}, s.fail("auth-code", err)
	}
	final, err := s.exchangeCodeViaRedirect(ctx, az, code)
	if err != nil {
		return Token{}, s.fail("redirect-code", err)
	}
	tok, err := s.exchangeForAccessToken(ctx, doc, final, pk)
	if err != nil {
		return Token{}, s.fail("access-token", err)
	}
	return tok, nil
}

// fail logs the real cause and returns the generic outward error.
func (s *session) fail(step string, err error) error {
	s.log.Warn("authentication step failed",
		slog.String("step", step),
		slog.Any("error", err))
	return &AuthenticationError{Step: step}
}

type oidcDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

func (s *session) discoverOIDC(ctx context.Context) (oidcDocument, error) {
	var doc oidcDocument
	u := baseURL(s.cfg.IdentityHost) + "/.well-known/openid-configuration"
	if err := s.getJSON(ctx, u, &doc); err != nil {
		return doc, err
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return doc, fmt.Errorf("discovery document incomplete")
	}
	return doc, nil
}

// authzParams is what the authorization redirect must yield. All three are
// required for the rest of the chain.
type authzParams struct {
	State    string
	KcURI    string
	ClientID string
}

func (s *session) initiateAuthorization(ctx context.Context, doc oidcDocument, pk pkcePair) (authzParams, error) {
	var az authzParams
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.cfg.ClientID)
	q.Set("redirect_uri", s.cfg.RedirectURI)
	q.Set("scope", oauthScope)
	q.Set("code_challenge", pk.challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("idp_hint", federationHint)

	loc, err := s.redirectLocation(ctx, doc.AuthorizationEndpoint+"?"+q.Encode())
	if err != nil {
		return az, err
	}
	vals := loc.Query()
	az.State = vals.Get("state")
	az.KcURI = vals.Get("kcUri")
	az.ClientID = vals.Get("clientId")
	switch {
	case az.State == "":
		return az, fmt.Errorf("authorization redirect missing state")
	case az.KcURI == "":
		return az, fmt.Errorf("authorization redirect missing kcUri")
	case az.ClientID == "":
		return az, fmt.Errorf("authorization redirect missing clientId")
	}
	return az, nil
}

type idpConfig struct {
	UserPoolID string `json:"userPoolId"`
	Endpoint   string `json:"endpoint"`
}

func (s *session) fetchIdPConfig(ctx context.Context) (idpConfig, error) {
	var cfg idpConfig
	if err := s.getJSON(ctx, baseURL(s.cfg.LoginHost)+"/config.json", &cfg); err != nil {
		return cfg, err
	}
	if cfg.UserPoolID == "" || cfg.Endpoint == "" {
		return cfg, fmt.Errorf("identity pool config incomplete")
	}
	return cfg, nil
}

type federatedTokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type initiateAuthResponse struct {
	ChallengeName       string            `json:"ChallengeName"`
	ChallengeParameters map[string]string `json:"ChallengeParameters"`
}

type respondToChallengeRequest struct {
	ChallengeName      string            `json:"ChallengeName"`
	ClientID           string            `json:"ClientId"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
}

type respondToChallengeResponse struct {
	AuthenticationResult struct {
		IDToken      string `json:"IdToken"`
		AccessToken  string `json:"AccessToken"`
		RefreshToken string `json:"RefreshToken"`
	} `json:"AuthenticationResult"`
}

func (s *session) federatedLogin(ctx context.Context, az authzParams, idp idpConfig) (federatedTokens, error) {
	var fed federatedTokens
	srp, err := newSRPSession(idp.UserPoolID)
	if err != nil {
		return fed, err
	}

	var initResp initiateAuthResponse
	err = s.poolCall(ctx, idp.Endpoint, targetInitiateAuth, initiateAuthRequest{
		AuthFlow: "USER_SRP_AUTH",
		ClientID: az.ClientID,
		AuthParameters: map[string]string{
			"USERNAME": s.cfg.Username,
			"SRP_A":    srp.srpA(),
		},
	}, &initResp)
	if err != nil {
		return fed, err
	}
	if initResp.ChallengeName != "PASSWORD_VERIFIER" {
		return fed, fmt.Errorf("unexpected challenge %q", initResp.ChallengeName)
	}
	cp := initResp.ChallengeParameters
	userID := cp["USER_ID_FOR_SRP"]
	srpB := cp["SRP_B"]
	salt := cp["SALT"]
	secretBlock := cp["SECRET_BLOCK"]
	if userID == "" || srpB == "" || salt == "" || secretBlock == "" {
		return fed, fmt.Errorf("password verifier challenge incomplete")
	}

	bInt, ok := new(big.Int).SetString(srpB, 16)
	if !ok {
		return fed, fmt.Errorf("malformed SRP_B")
	}
	key, err := srp.passwordAuthKey(userID, s.cfg.Password, salt, bInt)
	if err != nil {
		return fed, err
	}
	ts := srpTimestamp(timeNow())
	sig, err := srp.signPasswordClaim(key, userID, secretBlock, ts)
	if err != nil {
		return fed, err
	}

	var chResp respondToChallengeResponse
	err = s.poolCall(ctx, idp.Endpoint, targetRespondChallenge, respondToChallengeRequest{
		ChallengeName: "PASSWORD_VERIFIER",
		ClientID:      az.ClientID,
		ChallengeResponses: map[string]string{
			"PASSWORD_CLAIM_SECRET_BLOCK": secretBlock,
			"PASSWORD_CLAIM_SIGNATURE":    sig,
			"TIMESTAMP":                   ts,
			"USERNAME":                    userID,
		},
	}, &chResp)
	if err != nil {
		return fed, err
	}
	res := chResp.AuthenticationResult
	if res.IDToken == "" || res.AccessToken == "" || res.RefreshToken == "" {
		return fed, fmt.Errorf("authentication result incomplete")
	}
	return federatedTokens{IDToken: res.IDToken, AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

type authCodeRequest struct {
	IDToken      string `json:"idToken"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
}

type authCodeResponse struct {
	Code string `json:"code"`
}

func (s *session) exchangeForAuthCode(ctx context.Context, az authzParams, fed federatedTokens) (string, error) {
	body, err := json.Marshal(authCodeRequest{
		IDToken:      fed.IDToken,
		AccessToken:  fed.AccessToken,
		RefreshToken: fed.RefreshToken,
		ClientID:     az.ClientID,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(s.cfg.LoginHost)+"/api/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.follow.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange returned %d", resp.StatusCode)
	}
	var out authCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token exchange response: %w", err)
	}
	if out.Code == "" {
		return "", fmt.Errorf("token exchange returned no code")
	}
	return out.Code, nil
}

func (s *session) exchangeCodeViaRedirect(ctx context.Context, az authzParams, code string) (string, error) {
	u, err := url.Parse(az.KcURI)
	if err != nil {
		return "", fmt.Errorf("parse kcUri: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	q.Set("state", az.State)
	u.RawQuery = q.Encode()

	loc, err := s.redirectLocation(ctx, u.String())
	if err != nil {
		return "", err
	}
	final := loc.Query().Get("code")
	if final == "" {
		return "", fmt.Errorf("broker redirect missing code")
	}
	return final, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *session) exchangeForAccessToken(ctx context.Context, doc oidcDocument, code string, pk pkcePair) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", pk.verifier)
	form.Set("redirect_uri", s.cfg.RedirectURI)
	form.Set("client_id", s.cfg.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.follow.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return Token{}, fmt.Errorf("token response missing access_token")
	}
	ttl := s.cfg.TokenTTLFallback
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}
	return Token{Value: out.AccessToken, AbsoluteExpiry: timeNow().Add(ttl)}, nil
}

// redirectLocation GETs u without following redirects and returns the
// resolved Location URL of the 3xx response.
func (s *session) redirectLocation(ctx context.Context, u string) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.noFollow.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return nil, fmt.Errorf("expected redirect, got %d", resp.StatusCode)
	}
	loc, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("redirect without location")
	}
	return loc, nil
}

// getJSON fetches u with the cookie-jarred client and decodes a 200 JSON
// response.
func (s *session) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.follow.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// poolCall posts one identity-pool operation in the pool's native format.
func (s *session) poolCall(ctx context.Context, endpoint, target string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", target)
	resp, err := s.follow.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		// drain a bounded amount so the message never carries the payload
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", target, err)
	}
	return nil
}

// baseURL accepts a bare host or a full base URL and returns a base URL.
func baseURL(host string) string {
	if strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + host
}
